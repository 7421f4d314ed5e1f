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
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"

	"github.com/shielddns/shielddns/filter"
	"github.com/shielddns/shielddns/transport"
	"golang.org/x/sys/unix"
)

const commands = `
Commands:
  run                  Filter the DNS queries sent through a TUN device
  check <domain>...    Show whether domains would be blocked, and by which list
  allow <domain>...    Add domains to the whitelist
  block <domain>...    Add domains to the blacklist
  unallow <domain>...  Remove domains from the whitelist
  unblock <domain>...  Remove domains from the blacklist
  list                 Print the whitelist and the blacklist
  probe [server...]    Measure the upstream servers
`

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags...] <command> [args...]\n", path.Base(os.Args[0]))
		fmt.Fprint(flag.CommandLine.Output(), commands)
		fmt.Fprintln(flag.CommandLine.Output(), "\nFlags:")
		flag.PrintDefaults()
	}
}

func main() {
	configFlag := flag.String("config", "", "YAML config file. Built-in defaults are used if empty")
	rulesFlag := flag.String("rules", "", "File holding the user rules. Overrides the config")
	verboseFlag := flag.Bool("v", false, "Enable debug output")
	probeDomainFlag := flag.String("probe-domain", "example.com", "Domain queried by the probe command")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		slog.Error("Could not load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.logLevel()
	if *verboseFlag {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(os.Stderr, level))
	if *rulesFlag != "" {
		cfg.Rules = *rulesFlag
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	err = runCommand(ctx, cfg, flag.Arg(0), flag.Args()[1:], *probeDomainFlag, os.Stdout)
	stop()
	if err != nil {
		slog.Error("Command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg config, command string, args []string, probeDomain string, w io.Writer) error {
	store := filter.NewFileStore(cfg.Rules)
	switch command {
	case "run":
		return runTunnel(ctx, cfg)
	case "check":
		engine := filter.NewEngine(filter.WithLogger(slog.Default()))
		if err := engine.Restore(ctx, store); err != nil {
			return err
		}
		// A failed download still leaves the other lists in place.
		engine.LoadDefaults(ctx, cfg.ruleSource())
		return checkDomains(engine, w, args)
	case "allow", "block", "unallow", "unblock":
		return editRules(ctx, store, command, args)
	case "list":
		return listRules(ctx, store, w)
	case "probe":
		return probe(ctx, cfg, &transport.UDPDialer{}, probeDomain, args, w)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runTunnel(ctx context.Context, cfg config) error {
	dev, err := newTunDevice(cfg.TUN)
	if err != nil {
		return fmt.Errorf("failed to create TUN device: %w", err)
	}
	defer dev.Close()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, unix.SIGHUP)
	defer signal.Stop(reload)
	return serve(ctx, cfg, dev, &transport.UDPDialer{}, reload)
}
