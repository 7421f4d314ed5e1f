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
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/shielddns/shielddns/transport"
	"golang.org/x/net/dns/dnsmessage"
)

// RoundTripper is an interface representing the ability to execute a single DNS transaction, obtaining the
// response for a given question.
//
// The filter forwards opaque payloads through [Upstream]. RoundTripper is for callers that need a complete,
// validated exchange, such as probing a candidate server before selecting it.
type RoundTripper interface {
	RoundTrip(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error)
}

// FuncRoundTripper is a [RoundTripper] that uses the given function for the round trip.
type FuncRoundTripper func(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error)

// RoundTrip implements the [RoundTripper] interface.
func (f FuncRoundTripper) RoundTrip(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
	return f(ctx, q)
}

// NewQuestion is a convenience function to create a [dnsmessage.Question].
// A missing trailing dot is added to domain.
func NewQuestion(domain string, qtype dnsmessage.Type) (*dnsmessage.Question, error) {
	if !strings.HasSuffix(domain, ".") {
		domain += "."
	}
	name, err := dnsmessage.NewName(domain)
	if err != nil {
		return nil, fmt.Errorf("cannot parse domain name: %w", err)
	}
	return &dnsmessage.Question{
		Name:  name,
		Type:  qtype,
		Class: dnsmessage.ClassINET,
	}, nil
}

// NewUDPRoundTripper creates a [RoundTripper] that implements the [DNS-over-UDP] protocol, using a
// [transport.PacketDialer] for transport. It dials the resolver for every request and accepts replies of up to
// 512 bytes, the same limit [Upstream] applies to forwarded queries.
//
// [DNS-over-UDP]: https://datatracker.ietf.org/doc/html/rfc1035#section-4.2.1
func NewUDPRoundTripper(pd transport.PacketDialer, resolverAddr string) RoundTripper {
	return FuncRoundTripper(func(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
		conn, err := pd.DialPacket(ctx, resolverAddr)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}
		return exchange(conn, uint16(rand.Uint32()), q)
	})
}

// exchange writes a query for q and reads datagrams until one answers it. Datagrams that do not match the
// request are skipped, as described in [RFC 5452].
//
// [RFC 5452]: https://datatracker.ietf.org/doc/html/rfc5452#section-9.1
func exchange(conn io.ReadWriter, id uint16, q dnsmessage.Question) (*dnsmessage.Message, error) {
	b := dnsmessage.NewBuilder(make([]byte, 0, MaxUDPMessageSize), dnsmessage.Header{ID: id, RecursionDesired: true})
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	if err := b.Question(q); err != nil {
		return nil, err
	}
	req, err := b.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	buf := make([]byte, MaxUDPMessageSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		var msg dnsmessage.Message
		if err := msg.Unpack(buf[:n]); err != nil {
			continue
		}
		if err := matchResponse(id, q, &msg); err != nil {
			continue
		}
		return &msg, nil
	}
}

// matchResponse reports why msg is not the response to the request with the given id and question.
func matchResponse(id uint16, q dnsmessage.Question, msg *dnsmessage.Message) error {
	switch {
	case !msg.Header.Response:
		return errors.New("response bit not set")
	case msg.Header.ID != id:
		return fmt.Errorf("message id %d does not match %d", msg.Header.ID, id)
	case len(msg.Questions) == 0:
		return errors.New("no questions in response")
	}
	got := msg.Questions[0]
	if got.Type != q.Type || got.Class != q.Class || !strings.EqualFold(got.Name.String(), q.Name.String()) {
		return errors.New("response question doesn't match request")
	}
	return nil
}
