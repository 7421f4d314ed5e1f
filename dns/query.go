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

package dns

import (
	"fmt"
	"time"
)

// QueryType is the QTYPE of a question. Only the types the filter cares about are named; every other code
// maps to [TypeUnknown].
type QueryType uint16

const (
	TypeUnknown QueryType = 0
	TypeA       QueryType = 1
	TypeCNAME   QueryType = 5
	TypeMX      QueryType = 15
	TypeTXT     QueryType = 16
	TypeAAAA    QueryType = 28
)

func queryTypeOf(code uint16) QueryType {
	switch t := QueryType(code); t {
	case TypeA, TypeCNAME, TypeMX, TypeTXT, TypeAAAA:
		return t
	default:
		return TypeUnknown
	}
}

func (t QueryType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeCNAME:
		return "CNAME"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	default:
		return "UNKNOWN"
	}
}

// Query is the first question of a DNS query extracted from a frame.
type Query struct {
	// ID is the transaction ID from the DNS header.
	ID uint16
	// Domain is the question name, lowercase and dot-joined, without a trailing dot.
	Domain string
	Type   QueryType
	// Time is when the query was parsed.
	Time time.Time
}

func (q *Query) String() string {
	return fmt.Sprintf("%s %s #%d", q.Type, q.Domain, q.ID)
}
