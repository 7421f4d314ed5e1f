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

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shielddns/shielddns/filter"
	"github.com/stretchr/testify/require"
)

func TestEditRules(t *testing.T) {
	ctx := context.Background()
	store := filter.NewFileStore(filepath.Join(t.TempDir(), "rules.yaml"))

	require.NoError(t, editRules(ctx, store, "block", []string{"ads.example.com", "*.tracker.net"}))
	require.NoError(t, editRules(ctx, store, "allow", []string{"safe.example.com"}))
	require.NoError(t, editRules(ctx, store, "unblock", []string{"ads.example.com"}))
	require.Error(t, editRules(ctx, store, "block", nil))
	require.Error(t, editRules(ctx, store, "ban", []string{"x.com"}))

	rules, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []filter.Rule{
		{Pattern: "safe.example.com", Kind: filter.KindWhitelist},
		{Pattern: "*.tracker.net", Kind: filter.KindBlacklist},
	}, rules)

	var out bytes.Buffer
	require.NoError(t, listRules(ctx, store, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"LIST", "PATTERN"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"whitelist", "safe.example.com"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"blacklist", "*.tracker.net"}, strings.Fields(lines[2]))

	require.NoError(t, editRules(ctx, store, "unallow", []string{"SAFE.example.com"}))
	rules, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []filter.Rule{{Pattern: "*.tracker.net", Kind: filter.KindBlacklist}}, rules)
}

func TestCheckDomains(t *testing.T) {
	engine := filter.NewEngine(filter.WithFallback([]string{"doubleclick.net"}))
	engine.AddToBlacklist("*.tracker.net")
	engine.AddToWhitelist("safe.doubleclick.net")

	var out bytes.Buffer
	require.NoError(t, checkDomains(engine, &out, []string{"ad.DoubleClick.net", "safe.doubleclick.net", "x.tracker.net", "example.com"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, [][]string{
		{"DOMAIN", "DECISION", "LIST"},
		{"ad.doubleclick.net", "block", "default"},
		{"safe.doubleclick.net", "allow", "whitelist"},
		{"x.tracker.net", "block", "blacklist"},
		{"example.com", "allow", "none"},
	}, [][]string{
		strings.Fields(lines[0]), strings.Fields(lines[1]), strings.Fields(lines[2]),
		strings.Fields(lines[3]), strings.Fields(lines[4]),
	})

	require.Error(t, checkDomains(engine, &out, nil))
}
