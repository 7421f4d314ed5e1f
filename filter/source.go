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
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// RuleSource provides the default blocklist.
type RuleSource interface {
	// LoadDefaultDomains returns the domains to block. It may return some domains together with an error if only
	// part of the list could be read.
	LoadDefaultDomains(ctx context.Context) ([]string, error)
}

// FuncRuleSource is a [RuleSource] that uses the given function to load the list.
type FuncRuleSource func(ctx context.Context) ([]string, error)

var _ RuleSource = (FuncRuleSource)(nil)

// LoadDefaultDomains implements [RuleSource].
func (f FuncRuleSource) LoadDefaultDomains(ctx context.Context) ([]string, error) {
	return f(ctx)
}

//go:embed blocklist/hosts.txt
var bundledHosts []byte

// Bundled is the hosts list compiled into the binary.
var Bundled RuleSource = FuncRuleSource(func(ctx context.Context) ([]string, error) {
	return ParseHosts(bytes.NewReader(bundledHosts))
})

// HostsFile is a [RuleSource] that reads a hosts file from disk.
type HostsFile struct {
	Path string
}

var _ RuleSource = (*HostsFile)(nil)

// LoadDefaultDomains implements [RuleSource].
func (h *HostsFile) LoadDefaultDomains(ctx context.Context) ([]string, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseHosts(f)
}

// HostsURL is a [RuleSource] that downloads a hosts file.
type HostsURL struct {
	URL string
	// Client is used for the download. If nil, [http.DefaultClient] is used.
	Client *http.Client
}

var _ RuleSource = (*HostsURL)(nil)

// maxHostsDownload caps the size of a downloaded list.
const maxHostsDownload = 64 << 20

// LoadDefaultDomains implements [RuleSource].
func (h *HostsURL) LoadDefaultDomains(ctx context.Context) ([]string, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got HTTP status %v from %v", resp.StatusCode, h.URL)
	}
	return ParseHosts(io.LimitReader(resp.Body, maxHostsDownload))
}

// MergeSources returns a [RuleSource] with the union of the domains of sources. It fails only if every source
// fails; errors of the failed sources are joined to the result otherwise.
func MergeSources(sources ...RuleSource) RuleSource {
	return FuncRuleSource(func(ctx context.Context) ([]string, error) {
		var domains []string
		var errs []error
		failed := 0
		for _, src := range sources {
			d, err := src.LoadDefaultDomains(ctx)
			if err != nil {
				errs = append(errs, err)
				if len(d) == 0 {
					failed++
				}
			}
			domains = append(domains, d...)
		}
		if len(sources) > 0 && failed == len(sources) {
			return nil, errors.Join(errs...)
		}
		return domains, errors.Join(errs...)
	})
}
