// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dnsrouter

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/shielddns/shielddns/dns"
	"github.com/shielddns/shielddns/filter"
)

// StatsSink is notified of every query the [Router] decides on. Implementations are called from the routing loop,
// so they must return quickly.
type StatsSink interface {
	OnBlocked(q dns.Query)
	OnAllowed(q dns.Query)
}

type noStats struct{}

func (noStats) OnBlocked(dns.Query) {}
func (noStats) OnAllowed(dns.Query) {}

// DomainCount is the number of blocked queries for a domain.
type DomainCount struct {
	Domain string
	Count  int64
}

// Counters is a [StatsSink] that keeps query totals in memory, along with the number of blocked queries per domain.
// The zero value is ready to use. It's safe for concurrent use.
type Counters struct {
	blocked atomic.Int64
	allowed atomic.Int64

	mu       sync.Mutex
	byDomain map[string]int64
}

var _ StatsSink = (*Counters)(nil)

// NewCounters returns zeroed [Counters].
func NewCounters() *Counters {
	return &Counters{byDomain: make(map[string]int64)}
}

func (c *Counters) OnBlocked(q dns.Query) {
	c.blocked.Add(1)
	c.mu.Lock()
	if c.byDomain == nil {
		c.byDomain = make(map[string]int64)
	}
	c.byDomain[q.Domain]++
	c.mu.Unlock()
}

func (c *Counters) OnAllowed(dns.Query) {
	c.allowed.Add(1)
}

// Blocked returns the number of blocked queries.
func (c *Counters) Blocked() int64 { return c.blocked.Load() }

// Allowed returns the number of allowed queries.
func (c *Counters) Allowed() int64 { return c.allowed.Load() }

// Total returns the number of queries seen.
func (c *Counters) Total() int64 { return c.Blocked() + c.Allowed() }

// Top returns up to n domains with the most blocked queries, most blocked first. Ties are ordered by domain.
func (c *Counters) Top(n int) []DomainCount {
	c.mu.Lock()
	counts := make([]DomainCount, 0, len(c.byDomain))
	for domain, count := range c.byDomain {
		counts = append(counts, DomainCount{Domain: domain, Count: count})
	}
	c.mu.Unlock()
	return topN(counts, n)
}

// TopSites is like [Counters.Top] but adds up the queries of every subdomain under its base domain (see
// [filter.BaseDomain]), so that "ads.example.com" and "pixel.example.com" both count for "example.com".
func (c *Counters) TopSites(n int) []DomainCount {
	c.mu.Lock()
	bySite := make(map[string]int64, len(c.byDomain))
	for domain, count := range c.byDomain {
		bySite[filter.BaseDomain(domain)] += count
	}
	c.mu.Unlock()

	counts := make([]DomainCount, 0, len(bySite))
	for site, count := range bySite {
		counts = append(counts, DomainCount{Domain: site, Count: count})
	}
	return topN(counts, n)
}

func topN(counts []DomainCount, n int) []DomainCount {
	slices.SortFunc(counts, func(a, b DomainCount) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Domain, b.Domain)
	})
	if n < len(counts) {
		counts = counts[:max(n, 0)]
	}
	return counts
}

// Reset sets every counter back to zero.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked.Store(0)
	c.allowed.Store(0)
	clear(c.byDomain)
}
