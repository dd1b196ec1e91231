// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"sync"
	"time"
)

// 📊 RateCounter tracks one provider's request volume and last observed
// quota across every worker in a batch, so backoff decisions see the whole
// batch's traffic rather than one goroutine's. It is injected into adapters
// at construction; there is deliberately no package-level instance, which
// keeps test harnesses free to use isolated counters.
type RateCounter struct {
	mu        sync.Mutex
	requests  int64
	remaining int
	hasQuota  bool
	resetAt   time.Time
}

// RateSnapshot is a point-in-time copy of a counter.
type RateSnapshot struct {
	Requests  int64
	Remaining int
	HasQuota  bool
	ResetAt   time.Time
}

// Tick records one outbound request.
func (c *RateCounter) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
}

// Observe records the provider's reported remaining quota and reset time.
func (c *RateCounter) Observe(remaining int, resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = remaining
	c.hasQuota = true
	c.resetAt = resetAt
}

// Snapshot returns a copy of the current counter state.
func (c *RateCounter) Snapshot() RateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RateSnapshot{
		Requests:  c.requests,
		Remaining: c.remaining,
		HasQuota:  c.hasQuota,
		ResetAt:   c.resetAt,
	}
}

// Exhausted reports whether the last observation said the quota is spent and
// the reset time has not passed yet.
func (c *RateCounter) Exhausted(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasQuota && c.remaining == 0 && now.Before(c.resetAt)
}

// Gate returns a rate_limited error carrying the wait until the observed
// reset when the quota is exhausted, nil otherwise. Adapters call it before
// spending a request, so once any worker observes an empty quota every
// worker sharing the counter backs off instead of burning requests.
func (c *RateCounter) Gate(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasQuota || c.remaining > 0 || !now.Before(c.resetAt) {
		return nil
	}
	return NewError(KindRateLimited, nil,
		"quota exhausted until %s", c.resetAt.UTC().Format(time.RFC3339)).
		WithRetryAfter(c.resetAt.Sub(now))
}
