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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/shielddns/shielddns/dns"
	"github.com/shielddns/shielddns/filter"
	"github.com/shielddns/shielddns/network/dnsrouter"
	"github.com/shielddns/shielddns/transport"
	"gopkg.in/yaml.v3"
)

type tunConfig struct {
	Name string `yaml:"name"`
	// Address is the interface address with an optional prefix length. Queries must be sent to another address in
	// the prefix so that they are routed to the TUN device.
	Address string `yaml:"address"`
	MTU     int    `yaml:"mtu"`
}

type upstreamConfig struct {
	Server  string        `yaml:"server"`
	Servers []string      `yaml:"servers"`
	Timeout time.Duration `yaml:"timeout"`
}

type blocklistConfig struct {
	// Path and URL name hosts files loaded on top of the bundled list.
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

type config struct {
	TUN             tunConfig       `yaml:"tun"`
	Upstream        upstreamConfig  `yaml:"upstream"`
	Blocklist       blocklistConfig `yaml:"blocklist"`
	Rules           string          `yaml:"rules"`
	BlockMode       string          `yaml:"block_mode"`
	UpstreamFailure string          `yaml:"upstream_failure"`
	Concurrency     int             `yaml:"concurrency"`
	LogLevel        string          `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		TUN: tunConfig{Name: "shield0", Address: "10.111.222.1/24", MTU: 1500},
		Upstream: upstreamConfig{
			Server:  dns.DefaultServer,
			Servers: dns.DefaultServers,
			Timeout: dns.DefaultTimeout,
		},
		Rules:           "shielddns-rules.yaml",
		BlockMode:       dnsrouter.BlockZeroIP.String(),
		UpstreamFailure: dnsrouter.FailureDrop.String(),
		Concurrency:     1,
		LogLevel:        "info",
	}
}

// loadConfig reads the YAML config at path on top of the defaults. An empty path gives the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	if err := cfg.decode(f); err != nil {
		return cfg, fmt.Errorf("invalid config %v: %w", path, err)
	}
	return cfg, nil
}

func (c *config) decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return c.validate()
}

func (c *config) validate() error {
	if c.TUN.Name == "" {
		return errors.New("tun.name is required")
	}
	if _, err := c.tunPrefix(); err != nil {
		return err
	}
	if c.TUN.MTU < dns.MinFrameLen || c.TUN.MTU > 65535 {
		return fmt.Errorf("tun.mtu %d is out of range", c.TUN.MTU)
	}
	if _, err := dns.NewUpstream(&transport.UDPDialer{}, c.upstreamOptions()...); err != nil {
		return fmt.Errorf("invalid upstream: %w", err)
	}
	if _, err := c.blockMode(); err != nil {
		return err
	}
	if _, err := c.failurePolicy(); err != nil {
		return err
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// tunPrefix parses the TUN address. A bare address is a /32.
func (c *config) tunPrefix() (netip.Prefix, error) {
	addr := c.TUN.Address
	if !strings.Contains(addr, "/") {
		addr += "/32"
	}
	prefix, err := netip.ParsePrefix(addr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid tun.address: %w", err)
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("tun.address %v is not IPv4", prefix.Addr())
	}
	return prefix, nil
}

func (c *config) upstreamOptions() []dns.UpstreamOption {
	opts := []dns.UpstreamOption{dns.WithTimeout(c.Upstream.Timeout)}
	if len(c.Upstream.Servers) > 0 {
		opts = append(opts, dns.WithServers(c.Upstream.Servers))
	}
	if c.Upstream.Server != "" {
		opts = append(opts, dns.WithServer(c.Upstream.Server))
	}
	return opts
}

func (c *config) blockMode() (dnsrouter.BlockMode, error) {
	return dnsrouter.ParseBlockMode(c.BlockMode)
}

func (c *config) failurePolicy() (dnsrouter.FailurePolicy, error) {
	return dnsrouter.ParseFailurePolicy(c.UpstreamFailure)
}

func (c *config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level: %w", err)
	}
	return level, nil
}

// ruleSource returns the bundled list merged with the configured hosts files.
func (c *config) ruleSource() filter.RuleSource {
	sources := []filter.RuleSource{filter.Bundled}
	if c.Blocklist.Path != "" {
		sources = append(sources, &filter.HostsFile{Path: c.Blocklist.Path})
	}
	if c.Blocklist.URL != "" {
		sources = append(sources, &filter.HostsURL{URL: c.Blocklist.URL})
	}
	return filter.MergeSources(sources...)
}
