// Package dashboardtest wraps a dashboard.Directory with call accounting
// and fault injection for tests.
package dashboardtest

import (
	"context"
	"sync"

	"meraki-toolkit/internal/dashboard"
)

// Operation names used for call counts and fault keys
const (
	ListOrganizations = "ListOrganizations"
	ListNetworks      = "ListNetworks"
	ListSSIDs         = "ListSSIDs"
	UpdateSSIDPSK     = "UpdateSSIDPSK"
)

// Fake forwards to an inner Directory after consulting its fault queue.
// It is safe for concurrent use.
type Fake struct {
	inner dashboard.Directory

	mu          sync.Mutex
	calls       map[string]int
	faults      map[faultKey][]error
	pskOverride map[string]string
	inFlight    int
	maxInFlight int
	closed      int
}

type faultKey struct {
	operation string
	key       string
}

var _ dashboard.Session = (*Fake)(nil)

// New wraps inner
func New(inner dashboard.Directory) *Fake {
	return &Fake{
		inner:       inner,
		calls:       make(map[string]int),
		faults:      make(map[faultKey][]error),
		pskOverride: make(map[string]string),
	}
}

// FailNext queues errs for the next calls of operation on key. key is the
// organization id for ListNetworks, the network id for ListSSIDs and
// UpdateSSIDPSK, and "" for ListOrganizations. Each queued error is
// returned once, in order.
func (f *Fake) FailNext(operation, key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := faultKey{operation, key}
	f.faults[k] = append(f.faults[k], errs...)
}

// EchoPSK makes UpdateSSIDPSK on networkID answer with psk instead of the
// submitted value
func (f *Fake) EchoPSK(networkID, psk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pskOverride[networkID] = psk
}

// Calls returns how many times operation was invoked, faults included
func (f *Fake) Calls(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

// TotalCalls sums all operations
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of simultaneous calls observed
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// CloseCount returns how many times Close was called
func (f *Fake) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) enter(operation, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[operation]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}

	k := faultKey{operation, key}
	if queue := f.faults[k]; len(queue) > 0 {
		f.faults[k] = queue[1:]
		return queue[0]
	}
	return nil
}

func (f *Fake) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *Fake) ListOrganizations(ctx context.Context) ([]dashboard.Organization, error) {
	defer f.leave()
	if err := f.enter(ListOrganizations, ""); err != nil {
		return nil, err
	}
	return f.inner.ListOrganizations(ctx)
}

func (f *Fake) ListNetworks(ctx context.Context, organizationID string) ([]dashboard.Network, error) {
	defer f.leave()
	if err := f.enter(ListNetworks, organizationID); err != nil {
		return nil, err
	}
	return f.inner.ListNetworks(ctx, organizationID)
}

func (f *Fake) ListSSIDs(ctx context.Context, networkID string) ([]dashboard.SSID, error) {
	defer f.leave()
	if err := f.enter(ListSSIDs, networkID); err != nil {
		return nil, err
	}
	return f.inner.ListSSIDs(ctx, networkID)
}

func (f *Fake) UpdateSSIDPSK(ctx context.Context, networkID string, number int, psk string) (dashboard.SSID, error) {
	defer f.leave()
	if err := f.enter(UpdateSSIDPSK, networkID); err != nil {
		return dashboard.SSID{}, err
	}
	ssid, err := f.inner.UpdateSSIDPSK(ctx, networkID, number, psk)
	if err != nil {
		return ssid, err
	}

	f.mu.Lock()
	if override, ok := f.pskOverride[networkID]; ok {
		ssid.PSK = override
	}
	f.mu.Unlock()
	return ssid, nil
}

// Close counts the call and closes the inner directory when it is a Session
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	if closer, ok := f.inner.(dashboard.Session); ok {
		return closer.Close()
	}
	return nil
}
