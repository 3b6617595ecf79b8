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

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/metermon/pkg/models"
)

var (
	epA = models.Endpoint{Host: "192.168.1.10", Port: 9999}
	epB = models.Endpoint{Host: "192.168.1.11", Port: 9999}
)

func TestTouchInsertsWithCurrentTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewWithClock(func() time.Time { return now })

	c.Touch(epA)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, now, snap[epA])
}

func TestTouchRefreshesExistingEntry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewWithClock(func() time.Time { return now })

	c.Touch(epA)

	now = now.Add(5 * time.Minute)
	c.Touch(epA)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, now, snap[epA])
}

func TestEvictRemovesExactlyGivenEndpoints(t *testing.T) {
	c := New()

	c.Touch(epA)
	c.Touch(epB)

	c.Evict(epA)

	assert.False(t, c.Contains(epA))
	assert.True(t, c.Contains(epB))
	assert.Equal(t, 1, c.Len())
}

func TestEvictUnknownEndpointIsNoop(t *testing.T) {
	c := New()

	c.Touch(epA)
	c.Evict(epB)

	assert.Equal(t, 1, c.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()

	c.Touch(epA)

	snap := c.Snapshot()
	delete(snap, epA)

	assert.True(t, c.Contains(epA), "mutating a snapshot must not touch the cache")
}

func TestConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				c.Touch(epA)
				c.Snapshot()
				c.Evict(epB)
				c.Touch(epB)
			}
		}()
	}

	wg.Wait()

	assert.True(t, c.Contains(epA))
}
