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

import "fmt"

// Kind identifies the list a rule belongs to.
type Kind int

const (
	KindNone Kind = iota
	// KindDefault is the bundled or downloaded blocklist.
	KindDefault
	// KindBlacklist holds domains the user blocks in addition to the default list.
	KindBlacklist
	// KindWhitelist holds domains the user always allows.
	KindWhitelist
)

func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindBlacklist:
		return "blacklist"
	case KindWhitelist:
		return "whitelist"
	default:
		return "none"
	}
}

// ParseKind is the inverse of [Kind.String] for the user lists.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "blacklist", "block":
		return KindBlacklist, nil
	case "whitelist", "allow":
		return KindWhitelist, nil
	default:
		return KindNone, fmt.Errorf("unknown rule list %q", s)
	}
}

// Rule is a domain pattern on one of the lists.
type Rule struct {
	Pattern string
	Kind    Kind
}

func (r Rule) String() string {
	return r.Kind.String() + ":" + r.Pattern
}

// Decision is the outcome of filtering a domain.
type Decision int

const (
	Allow Decision = iota
	Block
)

func (d Decision) String() string {
	if d == Block {
		return "block"
	}
	return "allow"
}
