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
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shielddns/shielddns/network/dnsrouter"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.validate())
	prefix, err := cfg.tunPrefix()
	require.NoError(t, err)
	require.Equal(t, netip.MustParsePrefix("10.111.222.1/24"), prefix)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shielddns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tun: {name: shield1, address: 10.0.0.1, mtu: 1400}
upstream:
  server: 1.1.1.1
  servers: [1.1.1.1, 9.9.9.9]
  timeout: 2s
blocklist: {path: /etc/shielddns/hosts.txt}
rules: /var/lib/shielddns/rules.yaml
block_mode: nxdomain
upstream_failure: servfail
concurrency: 8
log_level: debug
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, tunConfig{Name: "shield1", Address: "10.0.0.1", MTU: 1400}, cfg.TUN)
	require.Equal(t, upstreamConfig{Server: "1.1.1.1", Servers: []string{"1.1.1.1", "9.9.9.9"}, Timeout: 2 * time.Second}, cfg.Upstream)
	require.Equal(t, "/etc/shielddns/hosts.txt", cfg.Blocklist.Path)
	require.Equal(t, "/var/lib/shielddns/rules.yaml", cfg.Rules)
	require.Equal(t, 8, cfg.Concurrency)

	prefix, err := cfg.tunPrefix()
	require.NoError(t, err)
	require.Equal(t, netip.MustParsePrefix("10.0.0.1/32"), prefix)
	mode, err := cfg.blockMode()
	require.NoError(t, err)
	require.Equal(t, dnsrouter.BlockNXDomain, mode)
	policy, err := cfg.failurePolicy()
	require.NoError(t, err)
	require.Equal(t, dnsrouter.FailureServFail, policy)
	level, err := cfg.logLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shielddns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream: {server: 9.9.9.9}\n"), 0o644))
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	want := defaultConfig()
	want.Upstream.Server = "9.9.9.9"
	require.Equal(t, want, cfg)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"unknown field", "tunnel: {name: x}"},
		{"empty tun name", "tun: {name: ''}"},
		{"ipv6 tun address", "tun: {address: 'fd00::1/64'}"},
		{"bad tun address", "tun: {address: nowhere}"},
		{"small mtu", "tun: {mtu: 20}"},
		{"ipv6 upstream", "upstream: {server: '2001:4860:4860::8888'}"},
		{"bad candidate", "upstream: {servers: [dns.google]}"},
		{"zero timeout", "upstream: {timeout: 0s}"},
		{"bad timeout", "upstream: {timeout: soon}"},
		{"block mode", "block_mode: refuse"},
		{"failure policy", "upstream_failure: retry"},
		{"concurrency", "concurrency: 0"},
		{"log level", "log_level: loud"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			require.Error(t, cfg.decode(strings.NewReader(tc.yaml)))
		})
	}
}

func TestConfigEmptyDocument(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.decode(strings.NewReader("")))
	require.Equal(t, defaultConfig(), cfg)
}
