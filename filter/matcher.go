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

import "strings"

const wildcardPrefix = "*."

// Normalize lowercases s and trims surrounding white space. Domains and patterns are always compared normalized.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether domain matches pattern. A domain equal to the pattern always matches. Beyond that, the
// wildcard pattern "*.example.com" matches "example.com" and any of its subdomains, and the bare pattern
// "example.com" matches any subdomain of "example.com".
func Matches(domain, pattern string) bool {
	domain = Normalize(domain)
	pattern = Normalize(pattern)
	if domain == pattern {
		return true
	}
	if base, ok := strings.CutPrefix(pattern, wildcardPrefix); ok {
		return IsSubdomainOf(domain, base)
	}
	return IsSubdomainOf(domain, pattern)
}

// IsSubdomainOf reports whether domain is parent or one of its subdomains.
func IsSubdomainOf(domain, parent string) bool {
	domain = strings.ToLower(domain)
	parent = strings.ToLower(parent)
	return domain == parent || strings.HasSuffix(domain, "."+parent)
}

// BaseDomain returns the last two labels of domain, e.g. "example.com" for "sub.ads.example.com".
// Public suffixes are not taken into account.
func BaseDomain(domain string) string {
	last := strings.LastIndexByte(domain, '.')
	if last < 0 {
		return domain
	}
	prev := strings.LastIndexByte(domain[:last], '.')
	return domain[prev+1:]
}
