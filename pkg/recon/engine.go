/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package recon decides which devices are live for a scrape. One cycle runs a
// broadcast round, rechecks cached endpoints the broadcast missed over
// unicast, evicts endpoints that have stayed silent past the forget timeout,
// and returns the merged reading set.
package recon

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/metermon/pkg/cache"
	"github.com/carverauto/metermon/pkg/emeter"
	"github.com/carverauto/metermon/pkg/logger"
	"github.com/carverauto/metermon/pkg/models"
	"github.com/carverauto/metermon/pkg/probe"
)

const (
	// DefaultProbeWait bounds both the broadcast collection window and each
	// unicast recheck.
	DefaultProbeWait = 500 * time.Millisecond

	// DefaultForgetTimeout is how long an endpoint may stay unconfirmed
	// before a failed recheck evicts it.
	DefaultForgetTimeout = 30 * time.Minute
)

// Source lists currently reachable devices with their readings. The local
// discovery engine and the cloud-relay client are interchangeable behind it.
type Source interface {
	Readings(ctx context.Context) ([]models.CanonicalReading, error)
}

// Prober is the slice of pkg/probe the engine needs. Narrowed for tests.
type Prober interface {
	Broadcast(ctx context.Context, wait time.Duration) ([]probe.Result, error)
	Unicast(ctx context.Context, ep models.Endpoint, wait time.Duration) (*models.RawDeviceResponse, error)
}

// Engine reconciles broadcast results with the endpoint cache. The cache is
// the only state carried between cycles; everything else is scrape-scoped.
type Engine struct {
	prober Prober
	cache  *cache.EndpointCache
	logger logger.Logger
	now    func() time.Time

	mu            sync.RWMutex
	probeWait     time.Duration
	forgetTimeout time.Duration
}

var _ Source = (*Engine)(nil)

// NewEngine creates a reconciliation engine. Zero durations select defaults.
func NewEngine(prober Prober, store *cache.EndpointCache, probeWait, forgetTimeout time.Duration, log logger.Logger) *Engine {
	if probeWait == 0 {
		probeWait = DefaultProbeWait
	}

	if forgetTimeout == 0 {
		forgetTimeout = DefaultForgetTimeout
	}

	return &Engine{
		prober:        prober,
		cache:         store,
		probeWait:     probeWait,
		forgetTimeout: forgetTimeout,
		logger:        log,
		now:           time.Now,
	}
}

// UpdateTunables applies reloaded probe timings. Cycles already in flight
// finish with the values they started with.
func (e *Engine) UpdateTunables(probeWait, forgetTimeout time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if probeWait > 0 {
		e.probeWait = probeWait
	}

	if forgetTimeout > 0 {
		e.forgetTimeout = forgetTimeout
	}
}

func (e *Engine) tunables() (probeWait, forgetTimeout time.Duration) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.probeWait, e.forgetTimeout
}

// Readings runs one reconciliation cycle and returns the merged reading set.
// Per-device failures never fail the cycle; the result is whatever subset of
// devices answered. Cache mutations happen only after probe outcomes are
// known, so an abandoned cycle cannot leave the cache half-updated.
func (e *Engine) Readings(ctx context.Context) ([]models.CanonicalReading, error) {
	now := e.now()
	probeWait, forgetTimeout := e.tunables()

	confirmed, err := e.prober.Broadcast(ctx, probeWait)
	if err != nil {
		// a failed broadcast round still leaves the unicast path
		e.logger.Warn().Err(err).Msg("broadcast round failed")
	}

	answered := make(map[models.Endpoint]struct{}, len(confirmed))
	for _, r := range confirmed {
		answered[r.Endpoint] = struct{}{}
	}

	known := e.cache.Snapshot()

	pending := make([]models.Endpoint, 0, len(known))

	for ep := range known {
		if _, ok := answered[ep]; !ok {
			pending = append(pending, ep)
		}
	}

	rechecked, failed := e.recheck(ctx, pending, probeWait)

	// eviction uses the pre-cycle timestamps from the snapshot, so an
	// endpoint refreshed by a concurrent scrape is at worst kept one extra
	// cycle
	var stale []models.Endpoint

	for _, ep := range failed {
		if now.Sub(known[ep]) >= forgetTimeout {
			stale = append(stale, ep)
		}
	}

	if len(stale) > 0 {
		e.cache.Evict(stale...)

		for _, ep := range stale {
			e.logger.Info().Str("endpoint", ep.String()).Msg("evicting device unseen past forget timeout")
		}
	}

	for _, r := range confirmed {
		if _, ok := known[r.Endpoint]; !ok {
			e.logger.Info().
				Str("endpoint", r.Endpoint.String()).
				Str("alias", r.Response.Alias).
				Msg("discovered device")
		}

		e.cache.Touch(r.Endpoint)
	}

	readings := make([]models.CanonicalReading, 0, len(confirmed)+len(rechecked))

	for _, r := range confirmed {
		resp := r.Response
		readings = append(readings, emeter.Reading(&resp))
	}

	for _, r := range rechecked {
		e.cache.Touch(r.Endpoint)

		readings = append(readings, emeter.Reading(&r.Response))
	}

	return readings, nil
}

// recheck probes every pending endpoint concurrently and partitions the
// outcomes. The endpoints are expected to number in the tens, so the fan-out
// is unbounded beyond the per-probe wait window.
func (e *Engine) recheck(ctx context.Context, pending []models.Endpoint, wait time.Duration) (ok []probe.Result, failed []models.Endpoint) {
	if len(pending) == 0 {
		return nil, nil
	}

	responses := make([]*models.RawDeviceResponse, len(pending))
	errs := make([]error, len(pending))

	var g errgroup.Group

	for i, ep := range pending {
		i, ep := i, ep

		g.Go(func() error {
			responses[i], errs[i] = e.prober.Unicast(ctx, ep, wait)
			return nil
		})
	}

	// probes record their own outcomes; Wait only joins them
	_ = g.Wait()

	for i, ep := range pending {
		if errs[i] != nil {
			e.logger.Debug().Err(errs[i]).Str("endpoint", ep.String()).Msg("unicast recheck failed")

			failed = append(failed, ep)

			continue
		}

		ok = append(ok, probe.Result{Endpoint: ep, Response: *responses[i]})
	}

	return ok, failed
}
