// Package target defines the unit of work of a PSK rotation: one SSID slot
// on one network.
package target

import "fmt"

// Target is a resolved (organization, network, SSID) triple. Targets are
// created by the resolver and never mutated afterwards.
type Target struct {
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organization"`
	NetworkID        string `json:"networkId"`
	NetworkName      string `json:"network"`
	SSIDNumber       int    `json:"ssidNumber"`
	SSIDName         string `json:"ssid"`
	EncryptionMode   string `json:"encryptionMode,omitempty"`
}

// String renders the target as org/network/ssid#n
func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%s#%d", t.OrganizationName, t.NetworkName, t.SSIDName, t.SSIDNumber)
}

// Validate checks that the target identifies a network and SSID slot
func Validate(t Target) error {
	if t.NetworkID == "" {
		return fmt.Errorf("target %s: network id cannot be empty", t)
	}
	if t.SSIDName == "" {
		return fmt.Errorf("target %s: ssid name cannot be empty", t)
	}
	if t.SSIDNumber < 0 {
		return fmt.Errorf("target %s: ssid number %d out of range", t, t.SSIDNumber)
	}
	return nil
}

// Dedupe keeps the first target seen for each network, preserving order
func Dedupe(targets []Target) []Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.NetworkID]; ok {
			continue
		}
		seen[t.NetworkID] = struct{}{}
		out = append(out, t)
	}
	return out
}
