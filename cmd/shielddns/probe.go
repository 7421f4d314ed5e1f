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
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shielddns/shielddns/dns"
	"github.com/shielddns/shielddns/transport"
)

// probe queries domain on each server, or on every configured candidate if servers is empty, and prints the
// round-trip times. It fails only if no server answers.
func probe(ctx context.Context, cfg config, pd transport.PacketDialer, domain string, servers []string, w io.Writer) error {
	upstream, err := dns.NewUpstream(pd, cfg.upstreamOptions()...)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		for _, s := range upstream.Servers() {
			servers = append(servers, s.String())
		}
	}
	if len(servers) == 0 {
		return errors.New("no upstream server to probe")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTIME\tRESULT")
	var answered int
	for _, s := range servers {
		rtt, err := upstream.Probe(ctx, s, domain)
		if err != nil {
			fmt.Fprintf(tw, "%v\t-\t%v\n", s, err)
			continue
		}
		answered++
		fmt.Fprintf(tw, "%v\t%v\tok\n", s, rtt.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if answered == 0 {
		return errors.New("no upstream server answered")
	}
	return nil
}
