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
	"fmt"
	"log/slog"
)

// BlockMode selects the reply sent for a blocked query.
type BlockMode int

const (
	// BlockZeroIP answers with a single A record pointing to 0.0.0.0.
	BlockZeroIP BlockMode = iota
	// BlockNXDomain answers that the name does not exist.
	BlockNXDomain
)

func (m BlockMode) String() string {
	switch m {
	case BlockZeroIP:
		return "zero-ip"
	case BlockNXDomain:
		return "nxdomain"
	default:
		return fmt.Sprintf("BlockMode(%d)", int(m))
	}
}

// ParseBlockMode parses the names returned by [BlockMode.String].
func ParseBlockMode(s string) (BlockMode, error) {
	switch s {
	case "", "zero-ip":
		return BlockZeroIP, nil
	case "nxdomain":
		return BlockNXDomain, nil
	}
	return 0, fmt.Errorf("invalid block mode %q", s)
}

// FailurePolicy selects what happens to an allowed query the upstream server doesn't answer.
type FailurePolicy int

const (
	// FailureDrop sends nothing. The client retries on its own.
	FailureDrop FailurePolicy = iota
	// FailureServFail answers with a SERVFAIL response.
	FailureServFail
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureDrop:
		return "drop"
	case FailureServFail:
		return "servfail"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy parses the names returned by [FailurePolicy.String].
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "drop":
		return FailureDrop, nil
	case "servfail":
		return FailureServFail, nil
	}
	return 0, fmt.Errorf("invalid upstream failure policy %q", s)
}

// Option configures a [Router] in [New].
type Option func(*Router)

// WithStats sets the sink notified of each blocked or allowed query.
func WithStats(stats StatsSink) Option {
	return func(r *Router) {
		r.stats = stats
	}
}

// WithBlockMode sets the reply for blocked queries. The default is [BlockZeroIP].
func WithBlockMode(mode BlockMode) Option {
	return func(r *Router) {
		r.blockMode = mode
	}
}

// WithUpstreamFailure sets the policy for queries the upstream server fails to answer. The default is [FailureDrop].
func WithUpstreamFailure(policy FailurePolicy) Option {
	return func(r *Router) {
		r.failure = policy
	}
}

// WithConcurrency lets up to n allowed queries wait for the upstream server at the same time. With the default of 1,
// frames are handled one at a time in arrival order.
func WithConcurrency(n int) Option {
	return func(r *Router) {
		r.concurrency = max(n, 1)
	}
}

// WithLogger sets the logger for dropped frames and routing errors.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}
