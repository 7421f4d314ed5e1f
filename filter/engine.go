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

package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Engine decides whether a domain is blocked. It holds three lists of patterns: the default blocklist, the user
// blacklist and the user whitelist. The whitelist overrides both blocklists.
//
// Every list is an immutable [Set]. Mutations build a replacement set and swap it in, so readers never observe a
// partially updated list. Multiple goroutines may invoke methods on an Engine simultaneously.
type Engine struct {
	logger   *slog.Logger
	fallback []string

	defaults  atomic.Pointer[Set]
	blacklist atomic.Pointer[Set]
	whitelist atomic.Pointer[Set]
	ready     atomic.Bool
	// loads counts default list loads. A load only installs its set if no newer load started after it.
	loads atomic.Uint64

	// mu serializes writers so that concurrent read-modify-write cycles don't lose updates.
	mu sync.Mutex
}

// EngineOption configures an [Engine] in [NewEngine].
type EngineOption func(*Engine)

// WithLogger sets the logger for list loading events.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFallback replaces [FallbackDomains] as the list blocked before a default list is loaded.
func WithFallback(domains []string) EngineOption {
	return func(e *Engine) {
		e.fallback = domains
	}
}

// NewEngine creates an [Engine] whose default list holds the fallback domains and whose user lists are empty.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: slog.Default(), fallback: FallbackDomains}
	for _, opt := range opts {
		opt(e)
	}
	e.defaults.Store(NewSet(e.fallback...))
	e.blacklist.Store(NewSet())
	e.whitelist.Store(NewSet())
	return e
}

// Decide returns the decision for domain and the list that made it, which is [KindNone] when no list matched.
func (e *Engine) Decide(domain string) (Decision, Kind) {
	domain = Normalize(domain)
	if e.whitelist.Load().Contains(domain) {
		return Allow, KindWhitelist
	}
	if e.blacklist.Load().Contains(domain) {
		return Block, KindBlacklist
	}
	if e.defaults.Load().Contains(domain) {
		return Block, KindDefault
	}
	return Allow, KindNone
}

// ShouldBlock reports whether queries for domain must be answered locally instead of being forwarded.
func (e *Engine) ShouldBlock(domain string) bool {
	d, _ := e.Decide(domain)
	return d == Block
}

func (e *Engine) list(kind Kind) *atomic.Pointer[Set] {
	switch kind {
	case KindWhitelist:
		return &e.whitelist
	case KindBlacklist:
		return &e.blacklist
	case KindDefault:
		return &e.defaults
	default:
		return nil
	}
}

func (e *Engine) update(kind Kind, change func(*Set) *Set) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := e.list(kind)
	l.Store(change(l.Load()))
}

// AddToWhitelist allows pattern regardless of the blocklists.
func (e *Engine) AddToWhitelist(pattern string) {
	e.update(KindWhitelist, func(s *Set) *Set { return s.With(pattern) })
}

// RemoveFromWhitelist removes pattern from the whitelist.
func (e *Engine) RemoveFromWhitelist(pattern string) {
	e.update(KindWhitelist, func(s *Set) *Set { return s.Without(pattern) })
}

// AddToBlacklist blocks pattern unless it is whitelisted.
func (e *Engine) AddToBlacklist(pattern string) {
	e.update(KindBlacklist, func(s *Set) *Set { return s.With(pattern) })
}

// RemoveFromBlacklist removes pattern from the user blacklist.
func (e *Engine) RemoveFromBlacklist(pattern string) {
	e.update(KindBlacklist, func(s *Set) *Set { return s.Without(pattern) })
}

// Whitelist returns the whitelisted patterns.
func (e *Engine) Whitelist() []string {
	return e.whitelist.Load().Patterns()
}

// Blacklist returns the user-blacklisted patterns.
func (e *Engine) Blacklist() []string {
	return e.blacklist.Load().Patterns()
}

// DefaultSize returns the number of patterns on the default list.
func (e *Engine) DefaultSize() int {
	return e.defaults.Load().Len()
}

// Ready reports whether a default list load has finished, successfully or not.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// SetUserRules replaces both user lists with rules. Rules of other kinds are ignored.
func (e *Engine) SetUserRules(rules []Rule) {
	var white, black []string
	for _, r := range rules {
		switch r.Kind {
		case KindWhitelist:
			white = append(white, r.Pattern)
		case KindBlacklist:
			black = append(black, r.Pattern)
		}
	}
	whiteSet, blackSet := NewSet(white...), NewSet(black...)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelist.Store(whiteSet)
	e.blacklist.Store(blackSet)
}

// UserRules returns the rules on both user lists.
func (e *Engine) UserRules() []Rule {
	var rules []Rule
	for _, p := range e.Whitelist() {
		rules = append(rules, Rule{Pattern: p, Kind: KindWhitelist})
	}
	for _, p := range e.Blacklist() {
		rules = append(rules, Rule{Pattern: p, Kind: KindBlacklist})
	}
	return rules
}

// Restore loads the user lists from store.
func (e *Engine) Restore(ctx context.Context, store RuleStore) error {
	rules, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load user rules: %w", err)
	}
	e.SetUserRules(rules)
	return nil
}

// LoadDefaults fetches the default list from src and installs it together with the fallback domains.
// The fallback list stays in place if src fails without returning any domain. LoadDefaults is meant to run in its
// own goroutine while the engine is already serving lookups. When loads overlap, the one started last wins: an
// older load that finishes later is discarded.
func (e *Engine) LoadDefaults(ctx context.Context, src RuleSource) error {
	gen := e.loads.Add(1)
	defer e.ready.Store(true)
	domains, err := src.LoadDefaultDomains(ctx)
	if err != nil {
		if len(domains) == 0 {
			e.logger.Warn("Failed to load blocklist, keeping fallback list", "error", err, "fallback", len(e.fallback))
			return fmt.Errorf("failed to load default domains: %w", err)
		}
		e.logger.Warn("Blocklist partially loaded", "error", err, "domains", len(domains))
	}
	if len(domains) == 0 {
		e.logger.Warn("Blocklist is empty, keeping fallback list", "fallback", len(e.fallback))
		return nil
	}
	set := NewSet(append(domains, e.fallback...)...)
	e.mu.Lock()
	if e.loads.Load() != gen {
		e.mu.Unlock()
		e.logger.Debug("Discarded superseded blocklist", "domains", set.Len())
		return nil
	}
	e.defaults.Store(set)
	e.mu.Unlock()
	e.logger.Info("Blocklist loaded", "domains", set.Len())
	return nil
}

// Reset empties the user lists and puts the fallback domains back as the default list.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Loads still in flight must not bring back a default list.
	e.loads.Add(1)
	e.defaults.Store(NewSet(e.fallback...))
	e.blacklist.Store(NewSet())
	e.whitelist.Store(NewSet())
}
