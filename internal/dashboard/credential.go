package dashboard

import (
	"fmt"
	"os"
	"strings"
)

// APIKeyEnvVar is consulted when no key is given explicitly
const APIKeyEnvVar = "MERAKI_DASHBOARD_API_KEY"

// Credential is a validated, immutable dashboard API key.
type Credential struct {
	key string
}

// NewCredential resolves the API key: explicit value, then the
// MERAKI_DASHBOARD_API_KEY environment variable. Neither present is an error.
func NewCredential(explicit string) (Credential, error) {
	return newCredential(explicit, os.Getenv)
}

func newCredential(explicit string, getenv func(string) string) (Credential, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return Credential{key: key}, nil
	}
	if key := strings.TrimSpace(getenv(APIKeyEnvVar)); key != "" {
		return Credential{key: key}, nil
	}
	return Credential{}, fmt.Errorf("API key not found: pass --apikey or set %s", APIKeyEnvVar)
}

// Key returns the raw key for request signing
func (c Credential) Key() string {
	return c.key
}

// IsZero reports whether the credential is unset
func (c Credential) IsZero() bool {
	return c.key == ""
}

// String masks the key so it cannot leak through logs or %v
func (c Credential) String() string {
	if len(c.key) <= 4 {
		return "****"
	}
	return "****" + c.key[len(c.key)-4:]
}
