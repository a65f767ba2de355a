// Package filter selects organizations and networks for a PSK rotation.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"meraki-toolkit/internal/dashboard"
)

// Wildcard in an organization or network list selects everything
const Wildcard = "ALL"

// Criteria is the immutable selection input of a run
type Criteria struct {
	Organizations []string `json:"organizations"`
	Networks      []string `json:"networks"`
	Tags          []string `json:"tags,omitempty"`
	SSID          string   `json:"ssid"`
}

// Validate checks the preconditions that must hold before any remote call
func (c Criteria) Validate() error {
	if len(c.Organizations) == 0 {
		return fmt.Errorf("organization list cannot be empty")
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("network list cannot be empty")
	}
	if strings.TrimSpace(c.SSID) == "" {
		return fmt.Errorf("ssid name cannot be empty")
	}
	return nil
}

// OrganizationFilter returns the name filter for organizations
func (c Criteria) OrganizationFilter() *NameFilter {
	return NewNameFilter("organization", c.Organizations)
}

// NetworkFilter returns the combined name and tag filter for networks
func (c Criteria) NetworkFilter() Filter {
	return NewCompositeFilter(
		NewNameFilter("network", c.Networks),
		NewTagFilter(c.Tags),
	)
}

// Clone returns a deep copy so records can snapshot the criteria
func (c Criteria) Clone() Criteria {
	return Criteria{
		Organizations: slices.Clone(c.Organizations),
		Networks:      slices.Clone(c.Networks),
		Tags:          slices.Clone(c.Tags),
		SSID:          c.SSID,
	}
}

// Filter represents a network filter condition
type Filter interface {
	// Match returns true if the network matches the filter condition
	Match(network dashboard.Network) bool
	// String returns a human-readable description of the filter
	String() string
}

// NameFilter matches exact names, or everything when the list holds Wildcard
type NameFilter struct {
	Kind  string
	Names []string
	all   bool
	set   map[string]struct{}
}

// NewNameFilter creates a name filter. kind only labels String output.
func NewNameFilter(kind string, names []string) *NameFilter {
	f := &NameFilter{Kind: kind, Names: names, set: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if name == Wildcard {
			f.all = true
		}
		f.set[name] = struct{}{}
	}
	return f
}

// MatchName reports whether name is selected
func (f *NameFilter) MatchName(name string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[name]
	return ok
}

// Match checks the network name
func (f *NameFilter) Match(network dashboard.Network) bool {
	return f.MatchName(network.Name)
}

// String returns a description of the name filter
func (f *NameFilter) String() string {
	if f.all {
		return fmt.Sprintf("%s: %s", f.Kind, Wildcard)
	}
	return fmt.Sprintf("%s: %s", f.Kind, strings.Join(f.Names, ","))
}

// TagFilter selects networks carrying at least one of Tags. An empty tag
// list selects every network.
type TagFilter struct {
	Tags []string
}

// NewTagFilter creates a new tag-based filter
func NewTagFilter(tags []string) *TagFilter {
	return &TagFilter{Tags: tags}
}

// Match checks whether the network tags intersect the filter tags
func (f *TagFilter) Match(network dashboard.Network) bool {
	if len(f.Tags) == 0 {
		return true
	}
	for _, tag := range network.Tags {
		if slices.Contains(f.Tags, tag) {
			return true
		}
	}
	return false
}

// String returns a description of the tag filter
func (f *TagFilter) String() string {
	if len(f.Tags) == 0 {
		return "tags: any"
	}
	return fmt.Sprintf("tags: %s", strings.Join(f.Tags, "|"))
}

// CompositeFilter matches networks accepted by every one of its filters
type CompositeFilter struct {
	Filters []Filter
}

// NewCompositeFilter creates a new composite filter
func NewCompositeFilter(filters ...Filter) *CompositeFilter {
	return &CompositeFilter{Filters: filters}
}

// Match reports whether all filters accept network
func (f *CompositeFilter) Match(network dashboard.Network) bool {
	for _, filter := range f.Filters {
		if !filter.Match(network) {
			return false
		}
	}
	return true
}

// String returns a description of the composite filter
func (f *CompositeFilter) String() string {
	if len(f.Filters) == 0 {
		return "no filters"
	}

	descriptions := make([]string, 0, len(f.Filters))
	for _, filter := range f.Filters {
		descriptions = append(descriptions, filter.String())
	}

	return fmt.Sprintf("(%s)", strings.Join(descriptions, " AND "))
}

// FilterNetworks returns the networks matching every filter, in input order
func FilterNetworks(networks []dashboard.Network, filters ...Filter) []dashboard.Network {
	if len(filters) == 0 {
		return networks
	}

	var filtered []dashboard.Network
	for _, network := range networks {
		match := true
		for _, filter := range filters {
			if !filter.Match(network) {
				match = false
				break
			}
		}
		if match {
			filtered = append(filtered, network)
		}
	}

	return filtered
}

// FirstSSID returns the first SSID, in slot order, whose name equals name
func FirstSSID(ssids []dashboard.SSID, name string) (dashboard.SSID, bool) {
	for _, ssid := range ssids {
		if ssid.Name == name {
			return ssid, true
		}
	}
	return dashboard.SSID{}, false
}
