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
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/shielddns/shielddns/transport"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

// startResolver runs a local DNS server that answers every A query with 192.0.2.1.
func startResolver(t *testing.T) string {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			var msg dnsmessage.Message
			if err := msg.Unpack(buf[:n]); err != nil || len(msg.Questions) == 0 {
				continue
			}
			msg.Header.Response = true
			msg.Answers = []dnsmessage.Resource{{
				Header: dnsmessage.ResourceHeader{Name: msg.Questions[0].Name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET},
				Body:   &dnsmessage.AResource{A: [4]byte{192, 0, 2, 1}},
			}}
			reply, err := msg.Pack()
			if err != nil {
				continue
			}
			conn.WriteTo(reply, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestProbe(t *testing.T) {
	resolver := startResolver(t)
	var mu sync.Mutex
	var dialed []string
	// Only 192.0.2.53 is reachable, through the local resolver.
	pd := transport.FuncPacketDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		mu.Lock()
		dialed = append(dialed, addr)
		mu.Unlock()
		if addr != "192.0.2.53:53" {
			return nil, &net.OpError{Op: "dial", Net: "udp", Err: net.UnknownNetworkError("unreachable")}
		}
		return (&transport.UDPDialer{}).DialPacket(ctx, resolver)
	})

	cfg := defaultConfig()
	cfg.Upstream.Servers = []string{"192.0.2.53", "192.0.2.54"}
	var out bytes.Buffer
	require.NoError(t, probe(context.Background(), cfg, pd, "example.com", nil, &out))
	require.Equal(t, []string{"192.0.2.53:53", "192.0.2.54:53"}, dialed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "192.0.2.53"))
	require.True(t, strings.HasSuffix(lines[1], "ok"))
	require.True(t, strings.HasPrefix(lines[2], "192.0.2.54"))
	require.Contains(t, lines[2], "unreachable")

	out.Reset()
	err := probe(context.Background(), cfg, pd, "example.com", []string{"192.0.2.54"}, &out)
	require.ErrorContains(t, err, "no upstream server answered")

	require.Error(t, probe(context.Background(), cfg, pd, "example.com", []string{"not-an-ip"}, &out))
}
