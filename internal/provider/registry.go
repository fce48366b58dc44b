// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package provider

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
)

// Router selects a provider and model for a request.
type Router interface {
	Route(ctx context.Context, modelRef string, exclude []string) (Provider, string, error)
	MaxAttempts() int
}

// Registry manages provider registration, lookup, and routing with
// failover. Refs use the "provider/model" format.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string
	failover   []string
}

var _ Router = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry, replacing any with the same name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, mserr.New(mserr.CodeProviderNotFound, "provider not found: "+name, mserr.FieldProvider(name))
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the ref used when a request names no model.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked("SetDefault", ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered failover chain.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked("SetFailover", ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

// MaxAttempts returns 1 (primary) + len(failover chain).
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route selects a provider for modelRef, or the default when modelRef is
// empty or "default". Providers named in exclude are skipped so a caller
// retrying after a failure moves along the chain.
func (r *Registry) Route(ctx context.Context, modelRef string, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref := r.defaultRef
	if modelRef != "" && modelRef != "default" {
		if !strings.Contains(modelRef, "/") {
			return nil, "", mserr.Errorf(mserr.CodeProviderInvalidModelRef, "model %q must use provider/model format", modelRef)
		}
		ref = modelRef
	}
	if ref == "" {
		return nil, "", mserr.New(mserr.CodeProviderNoDefault, "no default provider configured")
	}

	for _, candidate := range append([]string{ref}, r.failover...) {
		name, _ := parseRef(candidate)
		if slices.Contains(exclude, name) {
			continue
		}
		if p, model, ok := r.tryRefLocked(ctx, candidate); ok {
			return p, model, nil
		}
	}

	return nil, "", mserr.New(mserr.CodeProviderAllUnavailable, "all providers unavailable: no healthy provider found")
}

// Health returns a snapshot for every registered provider. Providers that
// do not track health report their Available result.
func (r *Registry) Health(ctx context.Context) []health.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]health.Metrics, 0, len(r.providers))
	for name, p := range r.providers {
		var m health.Metrics
		if hr, ok := p.(HealthReporter); ok {
			m = hr.HealthMetrics()
		} else {
			m.Available = p.Available(ctx)
		}
		m.Provider = name
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return mserr.Join(errs...)
}

// checkRefLocked requires r.mu to be held.
func (r *Registry) checkRefLocked(op, ref string) error {
	name, model := parseRef(ref)
	if name == "" || model == "" {
		return mserr.Errorf(mserr.CodeProviderInvalidModelRef, "%s: ref %q must use provider/model format", op, ref)
	}
	if _, ok := r.providers[name]; !ok {
		return mserr.New(mserr.CodeProviderNotFound, op+": provider not registered: "+name, mserr.FieldProvider(name))
	}
	return nil
}

// tryRefLocked requires r.mu to be held.
func (r *Registry) tryRefLocked(ctx context.Context, ref string) (Provider, string, bool) {
	name, model := parseRef(ref)
	p, ok := r.providers[name]
	if !ok || !p.Available(ctx) {
		return nil, "", false
	}
	return p, model, true
}

// parseRef splits a "provider/model" reference on the first "/".
func parseRef(ref string) (providerName, model string) {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}
