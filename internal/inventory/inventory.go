// Package inventory provides an offline dashboard.Directory backed by a
// YAML or JSON snapshot of organizations, networks and SSIDs.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"meraki-toolkit/internal/dashboard"
)

// Snapshot is the on-disk layout:
//
//	organizations:
//	  - id: "123"
//	    name: Acme
//	    networks:
//	      - id: N_1
//	        name: HQ
//	        tags: [retail]
//	        ssids:
//	          - {number: 0, name: Guest, psk: oldpassword}
type Snapshot struct {
	Organizations []Organization `yaml:"organizations" json:"organizations"`
}

// Organization is one organization entry with its networks
type Organization struct {
	ID       string    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	Networks []Network `yaml:"networks" json:"networks"`
}

// Network is one network entry with its SSIDs
type Network struct {
	dashboard.Network `yaml:",inline"`
	SSIDs             []dashboard.SSID `yaml:"ssids" json:"ssids"`
}

type networkRef struct {
	org, net int
}

// Directory serves dashboard calls from a Snapshot held in memory. Updates
// mutate the snapshot and, when write-back is enabled, are persisted on Close.
type Directory struct {
	path      string
	writeBack bool

	mu       sync.RWMutex
	snapshot Snapshot
	orgIndex map[string]int
	netIndex map[string]networkRef
	dirty    bool
}

var _ dashboard.Session = (*Directory)(nil)

// New returns a Directory over an in-memory snapshot
func New(snapshot Snapshot) *Directory {
	for i := range snapshot.Organizations {
		org := &snapshot.Organizations[i]
		for j := range org.Networks {
			if org.Networks[j].OrganizationID == "" {
				org.Networks[j].OrganizationID = org.ID
			}
		}
	}
	d := &Directory{snapshot: snapshot}
	d.reindex()
	return d
}

// Load reads a snapshot file. The format follows the extension: .json is
// JSON, anything else YAML. With writeBack set, Close rewrites the file if
// any PSK changed.
func Load(path string, writeBack bool) (*Directory, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	snapshot, err := Parse(content, formatFor(path))
	if err != nil {
		return nil, err
	}

	d := New(snapshot)
	d.path = path
	d.writeBack = writeBack
	return d, nil
}

// Parse decodes a snapshot in the given format ("json" or "yaml")
func Parse(content []byte, format string) (Snapshot, error) {
	var snapshot Snapshot
	var err error
	if format == "json" {
		err = json.Unmarshal(content, &snapshot)
	} else {
		err = yaml.Unmarshal(content, &snapshot)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse inventory file: %w", err)
	}

	seen := make(map[string]struct{})
	for i := range snapshot.Organizations {
		org := &snapshot.Organizations[i]
		if org.ID == "" {
			return Snapshot{}, fmt.Errorf("organization %q has no id", org.Name)
		}
		for j := range org.Networks {
			network := &org.Networks[j]
			if network.ID == "" {
				return Snapshot{}, fmt.Errorf("network %q in organization %q has no id", network.Name, org.Name)
			}
			if _, dup := seen[network.ID]; dup {
				return Snapshot{}, fmt.Errorf("duplicate network id %q", network.ID)
			}
			seen[network.ID] = struct{}{}
		}
	}
	return snapshot, nil
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

func (d *Directory) reindex() {
	d.orgIndex = make(map[string]int, len(d.snapshot.Organizations))
	d.netIndex = make(map[string]networkRef)
	for i, org := range d.snapshot.Organizations {
		d.orgIndex[org.ID] = i
		for j, network := range org.Networks {
			d.netIndex[network.ID] = networkRef{org: i, net: j}
		}
	}
}

func notFound(operation, what, id string) error {
	return &dashboard.APIError{
		Operation:  operation,
		StatusCode: http.StatusNotFound,
		Errors:     []string{fmt.Sprintf("%s %s not found", what, id)},
	}
}

// ListOrganizations returns the organizations in snapshot order
func (d *Directory) ListOrganizations(ctx context.Context) ([]dashboard.Organization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]dashboard.Organization, 0, len(d.snapshot.Organizations))
	for _, org := range d.snapshot.Organizations {
		out = append(out, dashboard.Organization{ID: org.ID, Name: org.Name})
	}
	return out, nil
}

// ListNetworks returns the networks of one organization
func (d *Directory) ListNetworks(ctx context.Context, organizationID string) ([]dashboard.Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.orgIndex[organizationID]
	if !ok {
		return nil, notFound("getOrganizationNetworks", "organization", organizationID)
	}

	networks := d.snapshot.Organizations[i].Networks
	out := make([]dashboard.Network, 0, len(networks))
	for _, network := range networks {
		n := network.Network
		n.Tags = slices.Clone(n.Tags)
		n.ProductTypes = slices.Clone(n.ProductTypes)
		out = append(out, n)
	}
	return out, nil
}

// ListSSIDs returns the SSIDs of a network. Networks whose product types
// exclude "wireless" answer with a 400, like the live dashboard.
func (d *Directory) ListSSIDs(ctx context.Context, networkID string) ([]dashboard.SSID, error) {
	const operation = "getNetworkWirelessSsids"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	ref, ok := d.netIndex[networkID]
	if !ok {
		return nil, notFound(operation, "network", networkID)
	}

	network := d.snapshot.Organizations[ref.org].Networks[ref.net]
	if len(network.ProductTypes) > 0 && !slices.Contains(network.ProductTypes, "wireless") {
		return nil, &dashboard.APIError{
			Operation:  operation,
			StatusCode: http.StatusBadRequest,
			Errors:     []string{"This endpoint only supports wireless networks"},
		}
	}
	return slices.Clone(network.SSIDs), nil
}

// UpdateSSIDPSK stores psk on the SSID slot and returns the stored SSID
func (d *Directory) UpdateSSIDPSK(ctx context.Context, networkID string, number int, psk string) (dashboard.SSID, error) {
	const operation = "updateNetworkWirelessSsid"
	if err := ctx.Err(); err != nil {
		return dashboard.SSID{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ref, ok := d.netIndex[networkID]
	if !ok {
		return dashboard.SSID{}, notFound(operation, "network", networkID)
	}

	ssids := d.snapshot.Organizations[ref.org].Networks[ref.net].SSIDs
	for i := range ssids {
		if ssids[i].Number == number {
			ssids[i].PSK = psk
			d.dirty = true
			return ssids[i], nil
		}
	}
	return dashboard.SSID{}, notFound(operation, "ssid", fmt.Sprintf("%s/%d", networkID, number))
}

// Snapshot returns a copy of the current state
func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := Snapshot{Organizations: make([]Organization, len(d.snapshot.Organizations))}
	for i, org := range d.snapshot.Organizations {
		out.Organizations[i] = Organization{ID: org.ID, Name: org.Name, Networks: make([]Network, len(org.Networks))}
		for j, network := range org.Networks {
			n := network
			n.Tags = slices.Clone(network.Tags)
			n.ProductTypes = slices.Clone(network.ProductTypes)
			n.SSIDs = slices.Clone(network.SSIDs)
			out.Organizations[i].Networks[j] = n
		}
	}
	return out
}

// Encode renders the current state in the given format
func (d *Directory) Encode(format string) ([]byte, error) {
	snapshot := d.Snapshot()
	if format == "json" {
		return json.MarshalIndent(snapshot, "", "  ")
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(snapshot); err != nil {
		return nil, fmt.Errorf("encoding inventory: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoding inventory: %w", err)
	}
	return buf.Bytes(), nil
}

// Close persists changes when the directory was loaded with write-back
func (d *Directory) Close() error {
	d.mu.RLock()
	persist := d.writeBack && d.dirty && d.path != ""
	d.mu.RUnlock()
	if !persist {
		return nil
	}

	content, err := d.Encode(formatFor(d.path))
	if err != nil {
		return err
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("writing inventory file: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing inventory file: %w", err)
	}

	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
	return nil
}
