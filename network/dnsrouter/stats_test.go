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
	"sync"
	"testing"

	"github.com/shielddns/shielddns/dns"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	c := NewCounters()
	for _, domain := range []string{"b.com", "a.com", "c.com", "a.com", "c.com", "c.com"} {
		c.OnBlocked(dns.Query{Domain: domain})
	}
	c.OnAllowed(dns.Query{Domain: "ok.com"})

	require.Equal(t, int64(6), c.Blocked())
	require.Equal(t, int64(1), c.Allowed())
	require.Equal(t, int64(7), c.Total())
	require.Equal(t, []DomainCount{{"c.com", 3}, {"a.com", 2}}, c.Top(2))
	require.Equal(t, []DomainCount{{"c.com", 3}, {"a.com", 2}, {"b.com", 1}}, c.Top(10))
	require.Empty(t, c.Top(0))
	require.Empty(t, c.Top(-1))

	c.Reset()
	require.Zero(t, c.Total())
	require.Empty(t, c.Top(10))
}

func TestCountersTopSites(t *testing.T) {
	c := NewCounters()
	for _, domain := range []string{"ads.example.com", "pixel.example.com", "example.com", "tracker.net", "b.tracker.net", "solo"} {
		c.OnBlocked(dns.Query{Domain: domain})
	}
	c.OnBlocked(dns.Query{Domain: "ads.example.com"})

	require.Equal(t, []DomainCount{{"example.com", 4}, {"tracker.net", 2}}, c.TopSites(2))
	require.Equal(t, []DomainCount{{"example.com", 4}, {"tracker.net", 2}, {"solo", 1}}, c.TopSites(10))
	require.Equal(t, []DomainCount{{"ads.example.com", 2}}, c.Top(1))
	require.Empty(t, c.TopSites(0))
}

func TestCountersZeroValue(t *testing.T) {
	var c Counters
	require.Empty(t, c.Top(5))
	c.OnBlocked(dns.Query{Domain: "a.com"})
	c.OnAllowed(dns.Query{Domain: "b.com"})
	require.Equal(t, int64(2), c.Total())
	require.Equal(t, []DomainCount{{"a.com", 1}}, c.Top(5))
	c.Reset()
	require.Zero(t, c.Total())
}

func TestCountersConcurrent(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.OnBlocked(dns.Query{Domain: "x.test"})
				c.OnAllowed(dns.Query{Domain: "y.test"})
				c.Top(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(800), c.Blocked())
	require.Equal(t, int64(800), c.Allowed())
	require.Equal(t, []DomainCount{{"x.test", 800}}, c.Top(5))
}
