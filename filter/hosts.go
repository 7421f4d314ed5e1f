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
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseHosts reads a blocklist in hosts file format:
//
//	# comment
//	0.0.0.0 ads.example.com
//	127.0.0.1 tracker.example.net
//
// Only entries that map to 0.0.0.0 or 127.0.0.1 are kept. Local names and names that are not dotted domains are
// skipped. Domains are returned lowercase, without duplicates, in file order.
func ParseHosts(r io.Reader) ([]string, error) {
	var domains []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		domain, ok := parseHostsLine(scanner.Text())
		if !ok {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	if err := scanner.Err(); err != nil {
		return domains, fmt.Errorf("failed to read hosts list: %w", err)
	}
	return domains, nil
}

func parseHostsLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	if fields[0] != "0.0.0.0" && fields[0] != "127.0.0.1" {
		return "", false
	}
	domain := strings.ToLower(fields[1])
	switch {
	case domain == "localhost", domain == "local":
		return "", false
	case !strings.Contains(domain, "."), strings.HasPrefix(domain, "."), strings.HasSuffix(domain, "."):
		return "", false
	}
	return domain, true
}
