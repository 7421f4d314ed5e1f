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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "rules.yaml"))
	rules, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestFileStoreAddRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "rules.yaml")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, Rule{Pattern: "Z.example.com", Kind: KindBlacklist}))
	require.NoError(t, store.Add(ctx, Rule{Pattern: "a.example.com", Kind: KindBlacklist}))
	require.NoError(t, store.Add(ctx, Rule{Pattern: "a.example.com", Kind: KindBlacklist}))
	require.NoError(t, store.Add(ctx, Rule{Pattern: "safe.example.com", Kind: KindWhitelist}))

	rules, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []Rule{
		{Pattern: "safe.example.com", Kind: KindWhitelist},
		{Pattern: "a.example.com", Kind: KindBlacklist},
		{Pattern: "z.example.com", Kind: KindBlacklist},
	}, rules)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "whitelist:")
	require.Contains(t, string(data), "- safe.example.com")

	require.NoError(t, store.Remove(ctx, Rule{Pattern: "A.example.com", Kind: KindBlacklist}))
	require.NoError(t, store.Remove(ctx, Rule{Pattern: "missing.com", Kind: KindWhitelist}))
	rules, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []Rule{
		{Pattern: "safe.example.com", Kind: KindWhitelist},
		{Pattern: "z.example.com", Kind: KindBlacklist},
	}, rules)
}

func TestFileStoreRejects(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "rules.yaml"))
	ctx := context.Background()
	require.Error(t, store.Add(ctx, Rule{Pattern: "  ", Kind: KindBlacklist}))
	require.Error(t, store.Add(ctx, Rule{Pattern: "a.com", Kind: KindDefault}))
}

func TestFileStoreHandWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blacklist:\n  - \"*.Tracker.net\"\n"), 0o644))
	rules, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Rule{{Pattern: "*.tracker.net", Kind: KindBlacklist}}, rules)

	require.NoError(t, os.WriteFile(path, []byte("blacklist: [unterminated\n"), 0o644))
	_, err = NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}
