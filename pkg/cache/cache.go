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

// Package cache tracks which device endpoints have been observed recently.
package cache

import (
	"sync"
	"time"

	"github.com/carverauto/metermon/pkg/models"
)

// EndpointCache is the process-wide set of known device endpoints with their
// last-seen timestamps. It is shared by concurrent scrapes; the lock is held
// only for map operations, never across network I/O or decoding.
type EndpointCache struct {
	mu      sync.Mutex
	entries map[models.Endpoint]time.Time
	now     func() time.Time
}

// New creates an empty endpoint cache.
func New() *EndpointCache {
	return &EndpointCache{
		entries: make(map[models.Endpoint]time.Time),
		now:     time.Now,
	}
}

// NewWithClock creates a cache with an injected clock for tests.
func NewWithClock(now func() time.Time) *EndpointCache {
	c := New()
	c.now = now

	return c
}

// Snapshot copies the current state so callers can iterate outside the lock.
func (c *EndpointCache) Snapshot() map[models.Endpoint]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := make(map[models.Endpoint]time.Time, len(c.entries))
	for ep, seen := range c.entries {
		snap[ep] = seen
	}

	return snap
}

// Touch inserts or refreshes an endpoint's last-seen timestamp.
func (c *EndpointCache) Touch(ep models.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ep] = c.now()
}

// Contains reports whether an endpoint is currently cached.
func (c *EndpointCache) Contains(ep models.Endpoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[ep]

	return ok
}

// Evict removes exactly the given endpoints.
func (c *EndpointCache) Evict(endpoints ...models.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ep := range endpoints {
		delete(c.entries, ep)
	}
}

// Len returns the number of cached endpoints.
func (c *EndpointCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
