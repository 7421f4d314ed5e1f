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

package dns

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/shielddns/shielddns/transport"
	"golang.org/x/net/dns/dnsmessage"
)

const (
	// MaxUDPMessageSize is the largest reply accepted from an upstream server.
	// https://datatracker.ietf.org/doc/html/rfc1035#section-2.3.4
	MaxUDPMessageSize = 512

	// DefaultTimeout bounds a single upstream exchange.
	DefaultTimeout = 5 * time.Second

	// DefaultServer is the upstream server used when none is selected.
	DefaultServer = "8.8.8.8"
)

// DefaultServers lists the candidate upstream servers offered for selection.
var DefaultServers = []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1"}

// Upstream forwards raw DNS payloads to a single selected DNS-over-UDP server.
// Every call to [Upstream.Resolve] uses a fresh datagram connection and there is no failover between servers.
//
// Multiple goroutines may invoke methods on an Upstream simultaneously.
type Upstream struct {
	dialer  transport.PacketDialer
	timeout time.Duration
	servers []netip.Addr
	server  atomic.Pointer[netip.Addr]
}

// UpstreamOption configures an [Upstream] in [NewUpstream].
type UpstreamOption func(*Upstream) error

// WithTimeout sets how long [Upstream.Resolve] waits for a reply.
func WithTimeout(timeout time.Duration) UpstreamOption {
	return func(u *Upstream) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		u.timeout = timeout
		return nil
	}
}

// WithServer selects the initial upstream server.
func WithServer(server string) UpstreamOption {
	return func(u *Upstream) error {
		return u.SetServer(server)
	}
}

// WithServers replaces the candidate servers reported by [Upstream.Servers].
func WithServers(servers []string) UpstreamOption {
	return func(u *Upstream) error {
		addrs := make([]netip.Addr, 0, len(servers))
		for _, s := range servers {
			addr, err := parseServer(s)
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}
		u.servers = addrs
		return nil
	}
}

// NewUpstream creates an [Upstream] that dials servers with pd.
// It uses [DefaultServer] and [DefaultTimeout] unless options say otherwise.
func NewUpstream(pd transport.PacketDialer, opts ...UpstreamOption) (*Upstream, error) {
	if pd == nil {
		return nil, errors.New("packet dialer is required")
	}
	u := &Upstream{dialer: pd, timeout: DefaultTimeout}
	if err := WithServers(DefaultServers)(u); err != nil {
		return nil, err
	}
	if err := u.SetServer(DefaultServer); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func parseServer(server string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid upstream server %q: %w", server, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("upstream server %v is not an IPv4 address", addr)
	}
	return addr, nil
}

// SetServer selects the server used by subsequent calls to [Upstream.Resolve].
// The server does not have to be one of [Upstream.Servers].
func (u *Upstream) SetServer(server string) error {
	addr, err := parseServer(server)
	if err != nil {
		return err
	}
	u.server.Store(&addr)
	return nil
}

// Server returns the selected server.
func (u *Upstream) Server() netip.Addr {
	return *u.server.Load()
}

// Servers returns the candidate servers.
func (u *Upstream) Servers() []netip.Addr {
	return slices.Clone(u.servers)
}

// Timeout returns the bound on a single exchange.
func (u *Upstream) Timeout() time.Duration {
	return u.timeout
}

// Resolve sends payload to the selected server and returns the first datagram it replies with, truncated to
// [MaxUDPMessageSize] bytes. It fails if no reply arrives within the timeout or before ctx is done.
func (u *Upstream) Resolve(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	server := netip.AddrPortFrom(u.Server(), dnsPort)
	conn, err := u.dialer.DialPacket(ctx, server.String())
	if err != nil {
		return nil, fmt.Errorf("failed to dial upstream %v: %w", server, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Unblock the read if ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to send query to %v: %w", server, err)
	}
	buf := make([]byte, MaxUDPMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("no reply from %v: %w", server, ctxErr)
		}
		// The socket deadline may fire before the context timer does.
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("no reply from %v within %v: %w", server, u.timeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("failed to read reply from %v: %w", server, err)
	}
	return buf[:n], nil
}

// Probe performs a complete A query for domain against server and reports how long it took.
// It is used to check a candidate server before selecting it with [Upstream.SetServer].
func (u *Upstream) Probe(ctx context.Context, server string, domain string) (time.Duration, error) {
	addr, err := parseServer(server)
	if err != nil {
		return 0, err
	}
	q, err := NewQuestion(domain, dnsmessage.TypeA)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	rt := NewUDPRoundTripper(u.dialer, netip.AddrPortFrom(addr, dnsPort).String())
	start := time.Now()
	msg, err := rt.RoundTrip(ctx, *q)
	if err != nil {
		return 0, fmt.Errorf("probe of %v failed: %w", addr, err)
	}
	if msg.Header.RCode != dnsmessage.RCodeSuccess && msg.Header.RCode != dnsmessage.RCodeNameError {
		return 0, fmt.Errorf("probe of %v failed: server returned %v", addr, msg.Header.RCode)
	}
	return time.Since(start), nil
}

// ExtractPayload returns the DNS message of the IPv4/UDP frame. Its length comes from the UDP length field rather
// than from the frame size, so trailing bytes after the datagram are excluded.
func ExtractPayload(frame []byte) ([]byte, error) {
	ihl := IPHeaderLen(frame)
	if ihl < ipv4MinHeaderLen || len(frame) < ihl+udpHeaderLen {
		return nil, fmt.Errorf("frame has no UDP header: %w", ErrMalformed)
	}
	udpLen := int(binary.BigEndian.Uint16(frame[ihl+udpLengthByte:]))
	if udpLen < udpHeaderLen || ihl+udpLen > len(frame) {
		return nil, fmt.Errorf("UDP length %d does not fit in the frame: %w", udpLen, ErrMalformed)
	}
	return frame[ihl+udpHeaderLen : ihl+udpLen], nil
}
