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
	"maps"
	"slices"
	"strings"
)

// Set is an immutable set of domain patterns.
//
// Lookups are O(labels) instead of O(patterns): wildcard and bare patterns are both indexed in a trie keyed by
// reversed domain labels, since both match their base domain and every subdomain of it. The result is the same as
// checking [Matches] against every pattern.
//
// A nil *Set is empty. Multiple goroutines may use a Set simultaneously.
type Set struct {
	patterns map[string]struct{}
	root     *labelNode
}

type labelNode struct {
	children map[string]*labelNode
	// terminal is set when a pattern ends at this node.
	terminal bool
}

// NewSet creates a Set of the normalized patterns. Patterns that are empty after normalization are skipped.
func NewSet(patterns ...string) *Set {
	s := &Set{patterns: make(map[string]struct{}, len(patterns)), root: &labelNode{}}
	for _, p := range patterns {
		s.add(Normalize(p))
	}
	return s
}

func (s *Set) add(pattern string) {
	if pattern == "" {
		return
	}
	if _, ok := s.patterns[pattern]; ok {
		return
	}
	s.patterns[pattern] = struct{}{}

	base := strings.TrimPrefix(pattern, wildcardPrefix)
	labels := strings.Split(base, ".")
	node := s.root
	for i := len(labels) - 1; i >= 0; i-- {
		if node.children == nil {
			node.children = make(map[string]*labelNode)
		}
		child, ok := node.children[labels[i]]
		if !ok {
			child = &labelNode{}
			node.children[labels[i]] = child
		}
		node = child
	}
	node.terminal = true
}

// Contains reports whether domain matches any pattern in the set.
func (s *Set) Contains(domain string) bool {
	if s == nil || len(s.patterns) == 0 {
		return false
	}
	domain = Normalize(domain)
	if _, ok := s.patterns[domain]; ok {
		return true
	}
	node := s.root
	end := len(domain)
	for {
		dot := strings.LastIndexByte(domain[:end], '.')
		node = node.children[domain[dot+1:end]]
		if node == nil {
			return false
		}
		if node.terminal {
			return true
		}
		if dot < 0 {
			return false
		}
		end = dot
	}
}

// Has reports whether pattern itself is in the set.
func (s *Set) Has(pattern string) bool {
	if s == nil {
		return false
	}
	_, ok := s.patterns[Normalize(pattern)]
	return ok
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Patterns returns the patterns in the set, sorted.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.patterns))
}

// With returns a new Set holding the patterns of s and patterns.
func (s *Set) With(patterns ...string) *Set {
	return NewSet(append(s.Patterns(), patterns...)...)
}

// Without returns a new Set holding the patterns of s except pattern.
func (s *Set) Without(pattern string) *Set {
	pattern = Normalize(pattern)
	return NewSet(slices.DeleteFunc(s.Patterns(), func(p string) bool { return p == pattern })...)
}
