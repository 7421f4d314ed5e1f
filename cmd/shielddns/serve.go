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
	"context"
	"log/slog"
	"os"

	"github.com/shielddns/shielddns/dns"
	"github.com/shielddns/shielddns/filter"
	"github.com/shielddns/shielddns/network"
	"github.com/shielddns/shielddns/network/dnsrouter"
	"github.com/shielddns/shielddns/transport"
)

const topBlocked = 5

// serve filters the DNS queries received on dev until ctx is done or dev fails. A value on reload makes it read the
// user rules and the blocklists again.
func serve(ctx context.Context, cfg config, dev network.IPDevice, pd transport.PacketDialer, reload <-chan os.Signal) error {
	store := filter.NewFileStore(cfg.Rules)
	engine := filter.NewEngine(filter.WithLogger(slog.Default()))
	if err := engine.Restore(ctx, store); err != nil {
		return err
	}
	loadCtx, cancelLoad := context.WithCancel(ctx)
	defer func() { cancelLoad() }()
	go engine.LoadDefaults(loadCtx, cfg.ruleSource())

	upstream, err := dns.NewUpstream(pd, cfg.upstreamOptions()...)
	if err != nil {
		return err
	}
	mode, err := cfg.blockMode()
	if err != nil {
		return err
	}
	policy, err := cfg.failurePolicy()
	if err != nil {
		return err
	}
	stats := dnsrouter.NewCounters()
	router, err := dnsrouter.New(dev, engine, upstream,
		dnsrouter.WithStats(stats),
		dnsrouter.WithBlockMode(mode),
		dnsrouter.WithUpstreamFailure(policy),
		dnsrouter.WithConcurrency(cfg.Concurrency),
		dnsrouter.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	if err := router.Start(ctx); err != nil {
		return err
	}
	slog.Info("Filtering DNS", "upstream", upstream.Server(), "rules", cfg.Rules, "block_mode", mode,
		"concurrency", cfg.Concurrency)
	defer logStats(stats)

	for {
		select {
		case sig := <-reload:
			slog.Info("Reloading rules", "signal", sig)
			if err := engine.Restore(ctx, store); err != nil {
				slog.Warn("Failed to reload user rules", "error", err)
			}
			// The engine discards an older load that finishes late. Cancelling it saves the download.
			cancelLoad()
			loadCtx, cancelLoad = context.WithCancel(ctx)
			go engine.LoadDefaults(loadCtx, cfg.ruleSource())

		case <-router.Done():
			return router.Err()

		case <-ctx.Done():
			if _, ok := dev.(network.ReadDeadliner); !ok {
				// Closing is the only way to interrupt a pending read.
				dev.Close()
			}
			return router.Stop()
		}
	}
}

func logStats(stats *dnsrouter.Counters) {
	slog.Info("Query totals", "blocked", stats.Blocked(), "allowed", stats.Allowed(), "top", stats.Top(topBlocked),
		"top_sites", stats.TopSites(topBlocked))
}
