// Package resolver turns selection criteria into the list of SSID slots to
// update by walking organizations, networks and SSIDs.
package resolver

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"meraki-toolkit/internal/dashboard"
	apperrors "meraki-toolkit/internal/errors"
	"meraki-toolkit/internal/executor"
	"meraki-toolkit/internal/filter"
	"meraki-toolkit/internal/logging"
	"meraki-toolkit/internal/target"
	"meraki-toolkit/internal/throttle"
)

// Config holds the resolver settings
type Config struct {
	Mode        executor.Mode
	Concurrency int // 0 for auto
	Retrier     *throttle.Retrier
	Logger      *logging.Logger
	Errors      *apperrors.ErrorCollector
}

// Resolver walks a Directory
type Resolver struct {
	dir     dashboard.Directory
	config  Config
	logger  *logging.Logger
	retrier *throttle.Retrier
}

// New creates a resolver over dir
func New(dir dashboard.Directory, config Config) *Resolver {
	if config.Mode == "" {
		config.Mode = executor.Concurrent
	}
	if config.Errors == nil {
		config.Errors = apperrors.NewErrorCollector()
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	retrier := config.Retrier
	if retrier == nil {
		retrier = throttle.New(logger, nil)
	}
	return &Resolver{dir: dir, config: config, logger: logger, retrier: retrier}
}

// Resolve returns at most one target per network, in discovery order:
// organization order first, then network order within the organization.
// Both modes return the same slice for the same remote state.
//
// A failed organization listing aborts resolution. A failed network or
// SSID listing drops that branch and is logged.
func (r *Resolver) Resolve(ctx context.Context, criteria filter.Criteria) ([]target.Target, error) {
	if err := criteria.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid criteria", err)
	}

	organizations, err := call(ctx, r, "getOrganizations", func(ctx context.Context) ([]dashboard.Organization, error) {
		return r.dir.ListOrganizations(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}

	orgFilter := criteria.OrganizationFilter()
	networkFilter := criteria.NetworkFilter()

	var targets []target.Target
	for _, org := range organizations {
		if !orgFilter.MatchName(org.Name) {
			continue
		}

		found, err := r.resolveOrganization(ctx, org, networkFilter, criteria.SSID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, found...)
	}

	return target.Dedupe(targets), nil
}

func (r *Resolver) resolveOrganization(ctx context.Context, org dashboard.Organization, networkFilter filter.Filter, ssidName string) ([]target.Target, error) {
	networks, err := call(ctx, r, "getOrganizationNetworks", func(ctx context.Context) ([]dashboard.Network, error) {
		return r.dir.ListNetworks(ctx, org.ID)
	}, "organization", org.Name)
	if err != nil {
		if dashboard.IsAPIError(err) {
			r.config.Errors.Add(err)
			r.logger.LogSkip("organization", org.Name, err)
			return nil, nil
		}
		return nil, fmt.Errorf("listing networks of %s: %w", org.Name, err)
	}

	selected := filter.FilterNetworks(networks, networkFilter)
	if len(selected) == 0 {
		return nil, nil
	}

	slots := make([]*target.Target, len(selected))

	if r.config.Mode == executor.Sequential {
		for i, network := range selected {
			t, err := r.lookup(ctx, org, network, ssidName)
			if err != nil {
				return nil, err
			}
			slots[i] = t
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(executor.CalculateConcurrency(r.config.Concurrency, len(selected)))
		for i, network := range selected {
			g.Go(func() error {
				t, err := r.lookup(gctx, org, network, ssidName)
				slots[i] = t
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var targets []target.Target
	for _, t := range slots {
		if t != nil {
			targets = append(targets, *t)
		}
	}
	return targets, nil
}

// lookup returns the target for one network, or nil when the network has
// no SSID named ssidName
func (r *Resolver) lookup(ctx context.Context, org dashboard.Organization, network dashboard.Network, ssidName string) (*target.Target, error) {
	ssids, err := call(ctx, r, "getNetworkWirelessSsids", func(ctx context.Context) ([]dashboard.SSID, error) {
		return r.dir.ListSSIDs(ctx, network.ID)
	}, "network", network.Name)
	if err != nil {
		if dashboard.IsAPIError(err) {
			r.config.Errors.Add(err)
			r.logger.LogSkip("network", network.Name, err)
			return nil, nil
		}
		return nil, fmt.Errorf("listing ssids of %s: %w", network.Name, err)
	}

	ssid, ok := filter.FirstSSID(ssids, ssidName)
	if !ok {
		return nil, nil
	}

	t := target.Target{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		NetworkID:        network.ID,
		NetworkName:      network.Name,
		SSIDNumber:       ssid.Number,
		SSIDName:         ssid.Name,
		EncryptionMode:   ssid.EncryptionMode,
	}
	r.logger.LogTargetResolved(t)
	return &t, nil
}

// call wraps one remote listing with rate-limit retries and START/END logs
func call[T any](ctx context.Context, r *Resolver, operation string, fn func(context.Context) (T, error), args ...any) (T, error) {
	start := time.Now()
	r.logger.LogCallStart(operation, args...)
	value, _, err := throttle.Call(ctx, r.retrier, operation, fn)
	r.logger.LogCallEnd(operation, time.Since(start), args...)
	return value, err
}
