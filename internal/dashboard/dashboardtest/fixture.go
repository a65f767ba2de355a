package dashboardtest

import (
	"meraki-toolkit/internal/dashboard"
	"meraki-toolkit/internal/inventory"
)

// InitialPSK is the PSK every fixture SSID starts with
const InitialPSK = "initial-psk"

// Org builds an inventory organization
func Org(id, name string, networks ...inventory.Network) inventory.Organization {
	return inventory.Organization{ID: id, Name: name, Networks: networks}
}

// Net builds an inventory network whose SSID slots are numbered in the
// order the names are given
func Net(id, name string, tags []string, ssidNames ...string) inventory.Network {
	ssids := make([]dashboard.SSID, len(ssidNames))
	for i, ssidName := range ssidNames {
		ssids[i] = dashboard.SSID{
			Number:         i,
			Name:           ssidName,
			Enabled:        true,
			AuthMode:       "psk",
			EncryptionMode: "wpa",
			PSK:            InitialPSK,
		}
	}
	return inventory.Network{
		Network: dashboard.Network{ID: id, Name: name, Tags: tags, ProductTypes: []string{"wireless"}},
		SSIDs:   ssids,
	}
}

// NewInventory returns a fault-injecting Fake over an in-memory inventory
// holding orgs, along with the inventory for state inspection
func NewInventory(orgs ...inventory.Organization) (*Fake, *inventory.Directory) {
	dir := inventory.New(inventory.Snapshot{Organizations: orgs})
	return New(dir), dir
}

// PSK returns the stored PSK of one slot, or "" when it does not exist
func PSK(dir *inventory.Directory, networkID string, number int) string {
	for _, org := range dir.Snapshot().Organizations {
		for _, network := range org.Networks {
			if network.ID != networkID {
				continue
			}
			for _, ssid := range network.SSIDs {
				if ssid.Number == number {
					return ssid.PSK
				}
			}
		}
	}
	return ""
}
