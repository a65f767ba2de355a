// Package dashboard provides access to the cloud dashboard hierarchy of
// organizations, networks and wireless SSIDs.
package dashboard

import (
	"context"
	"io"
)

// Organization is a top-level tenant in the dashboard
type Organization struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Network is a site owned by an organization
type Network struct {
	ID             string   `json:"id" yaml:"id"`
	OrganizationID string   `json:"organizationId" yaml:"organizationId"`
	Name           string   `json:"name" yaml:"name"`
	Tags           []string `json:"tags" yaml:"tags"`
	ProductTypes   []string `json:"productTypes,omitempty" yaml:"productTypes,omitempty"`
}

// SSID is one wireless slot of a network. Number is the 0-based slot index.
type SSID struct {
	Number            int    `json:"number" yaml:"number"`
	Name              string `json:"name" yaml:"name"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	AuthMode          string `json:"authMode,omitempty" yaml:"authMode,omitempty"`
	EncryptionMode    string `json:"encryptionMode,omitempty" yaml:"encryptionMode,omitempty"`
	WPAEncryptionMode string `json:"wpaEncryptionMode,omitempty" yaml:"wpaEncryptionMode,omitempty"`
	PSK               string `json:"psk,omitempty" yaml:"psk,omitempty"`
}

// Directory is the capability set the rotation engine consumes.
//
// Implementations must tolerate concurrent calls. Failures are reported as
// *RateLimitedError or *APIError; any other error is treated as unexpected
// by callers.
type Directory interface {
	// ListOrganizations returns every organization visible to the credential
	ListOrganizations(ctx context.Context) ([]Organization, error)

	// ListNetworks returns the networks of one organization
	ListNetworks(ctx context.Context, organizationID string) ([]Network, error)

	// ListSSIDs returns the wireless SSIDs of a network. An empty list is valid.
	ListSSIDs(ctx context.Context, networkID string) ([]SSID, error)

	// UpdateSSIDPSK sets the pre-shared key of one SSID slot and returns the
	// SSID as stored by the remote side
	UpdateSSIDPSK(ctx context.Context, networkID string, number int, psk string) (SSID, error)
}

// Session is a Directory scoped to one run. Close releases its resources.
type Session interface {
	Directory
	io.Closer
}
