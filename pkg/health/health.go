// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package health holds the provider health snapshot shared by the provider
// registry and the HTTP API.
package health

import "time"

// Metrics is a point-in-time view of one provider's health.
type Metrics struct {
	Provider      string     `json:"provider"`
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// Report summarizes a set of provider snapshots.
type Report struct {
	Healthy   bool      `json:"healthy"`
	Providers []Metrics `json:"providers"`
}

// Summarize builds a Report. The set is healthy when at least one provider
// is available.
func Summarize(metrics []Metrics) Report {
	r := Report{Providers: metrics}
	if r.Providers == nil {
		r.Providers = []Metrics{}
	}
	for _, m := range metrics {
		if m.Available {
			r.Healthy = true
			break
		}
	}
	return r
}
