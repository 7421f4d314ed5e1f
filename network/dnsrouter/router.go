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

package dnsrouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shielddns/shielddns/dns"
	"github.com/shielddns/shielddns/network"
)

// ErrRunning is returned by [Router.Start] when the router is already running.
var ErrRunning = errors.New("router is already running")

const defaultMTU = 1500

// Filter decides whether queries for a domain are blocked. It's implemented by filter.Engine.
type Filter interface {
	ShouldBlock(domain string) bool
}

// Resolver forwards a raw DNS query to an upstream server and returns the raw reply. [dns.Upstream] implements it.
type Resolver interface {
	Resolve(ctx context.Context, payload []byte) ([]byte, error)
}

// Router reads IP packets from a [network.IPDevice] and answers the DNS queries among them. Queries for blocked
// domains get a synthesized reply. Other queries are forwarded upstream and the reply, if any, is written back to
// the device. Packets that are not IPv4 DNS queries are dropped.
//
// A Router is either stopped, which is its initial state, or running. All methods are safe for concurrent use.
type Router struct {
	dev      network.IPDevice
	filter   Filter
	upstream Resolver

	stats       StatsSink
	blockMode   BlockMode
	failure     FailurePolicy
	concurrency int
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates a stopped [Router] serving the DNS queries received on dev.
func New(dev network.IPDevice, filter Filter, upstream Resolver, opts ...Option) (*Router, error) {
	if dev == nil {
		return nil, errors.New("device must not be nil")
	}
	if filter == nil {
		return nil, errors.New("filter must not be nil")
	}
	if upstream == nil {
		return nil, errors.New("upstream resolver must not be nil")
	}
	done := make(chan struct{})
	close(done)
	r := &Router{
		dev:         dev,
		filter:      filter,
		upstream:    upstream,
		stats:       noStats{},
		concurrency: 1,
		logger:      slog.Default(),
		done:        done,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.stats == nil {
		r.stats = noStats{}
	}
	return r, nil
}

// Start starts the routing loop in a new goroutine. The loop runs until [Router.Stop] is called, ctx is done, or
// the device fails. It returns [ErrRunning] if the loop is already running.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrRunning
	}
	// A previous Stop may have left an expired deadline behind.
	if rd, ok := r.dev.(network.ReadDeadliner); ok {
		if err := rd.SetReadDeadline(time.Time{}); err != nil {
			return fmt.Errorf("failed to reset device read deadline: %w", err)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.err = nil
	go r.run(ctx, r.done)
	return nil
}

// Stop stops the routing loop and waits for it to exit. It returns the error that ended the loop before Stop was
// called, if any.
//
// A device read is interrupted only if the device implements [network.ReadDeadliner]. Otherwise the loop exits
// after the next packet arrives or the device is closed.
func (r *Router) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if rd, ok := r.dev.(network.ReadDeadliner); ok {
		// Errors are ignored: the device may be closed already.
		rd.SetReadDeadline(time.Now())
	}
	<-done
	return r.Err()
}

// Running reports whether the routing loop is running.
func (r *Router) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Done returns a channel that is closed when the routing loop exits. It's already closed if the router has never
// been started.
func (r *Router) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err returns the device failure that ended the last run of the routing loop, or nil if it was stopped normally.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Router) run(ctx context.Context, done chan struct{}) {
	var err error
	if r.concurrency > 1 {
		err = r.fanOut(ctx)
	} else {
		err = r.serial(ctx)
	}
	if err != nil {
		r.logger.Error("DNS routing stopped", "error", err)
	}
	r.mu.Lock()
	r.cancel()
	r.running = false
	r.err = err
	r.mu.Unlock()
	close(done)
}

func (r *Router) readBuffer() []byte {
	mtu := r.dev.MTU()
	if mtu <= 0 {
		mtu = defaultMTU
	}
	return make([]byte, mtu)
}

// serial handles one frame at a time, so replies are written in arrival order.
func (r *Router) serial(ctx context.Context) error {
	buf := r.readBuffer()
	for ctx.Err() == nil {
		n, err := r.dev.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from device: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := r.HandleFrame(ctx, buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// fanOut answers blocked queries from the read loop and forwards allowed queries from up to r.concurrency
// goroutines. A single goroutine writes all replies.
func (r *Router) fanOut(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan []byte, r.concurrency)
	writerDone := make(chan struct{})
	var writeErr error
	go func() {
		defer close(writerDone)
		for reply := range replies {
			if err := r.write(reply); err != nil {
				writeErr = err
				cancel()
				r.interruptRead()
				break
			}
		}
		// Drain so that no sender blocks.
		for range replies {
		}
	}()

	var readErr error
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.concurrency)
	buf := r.readBuffer()
loop:
	for ctx.Err() == nil {
		n, err := r.dev.Read(buf)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("failed to read from device: %w", err)
			break
		}
		q, blocked := r.classify(buf[:n])
		if q == nil {
			continue
		}
		if blocked {
			if reply := r.blockedReply(q, buf[:n]); reply != nil {
				replies <- reply
			}
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		frame := bytes.Clone(buf[:n])
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			if reply := r.forward(ctx, q, frame); reply != nil {
				replies <- reply
			}
		}()
	}
	// The device is gone or the router is stopping: lookups still in flight have nowhere to reply.
	cancel()
	wg.Wait()
	close(replies)
	<-writerDone
	if readErr != nil {
		return readErr
	}
	return writeErr
}

func (r *Router) interruptRead() {
	if rd, ok := r.dev.(network.ReadDeadliner); ok {
		rd.SetReadDeadline(time.Now())
	}
}

// HandleFrame runs one iteration of the routing loop on frame: it answers the frame if it's a DNS query and writes
// the reply to the device. Frames that aren't DNS queries are ignored. The returned error is always a device
// failure. HandleFrame must not be called while the router is running.
func (r *Router) HandleFrame(ctx context.Context, frame []byte) error {
	q, blocked := r.classify(frame)
	if q == nil {
		return nil
	}
	var reply []byte
	if blocked {
		reply = r.blockedReply(q, frame)
	} else {
		reply = r.forward(ctx, q, frame)
	}
	return r.write(reply)
}

// classify parses frame and applies the filter. It returns a nil query if frame is not a DNS query.
func (r *Router) classify(frame []byte) (*dns.Query, bool) {
	if len(frame) == 0 {
		return nil, false
	}
	q, err := dns.ParseQuery(frame)
	if err != nil {
		r.logger.Debug("Dropped frame", "length", len(frame), "error", err)
		return nil, false
	}
	return q, r.filter.ShouldBlock(q.Domain)
}

func (r *Router) blockedReply(q *dns.Query, frame []byte) []byte {
	r.stats.OnBlocked(*q)
	src, _ := dns.SourceAddr(frame)
	r.logger.Debug("Blocked query", "query", q, "client", src)

	ihl := dns.IPHeaderLen(frame)
	var resp []byte
	var err error
	switch r.blockMode {
	case BlockNXDomain:
		resp, err = dns.NXDomainResponse(q, frame, ihl)
	default:
		resp, err = dns.BlockedResponse(q, frame, ihl)
	}
	if err != nil {
		r.logger.Debug("Failed to build blocked response", "query", q, "error", err)
		return nil
	}
	return r.wrap(q, frame, resp)
}

func (r *Router) forward(ctx context.Context, q *dns.Query, frame []byte) []byte {
	r.stats.OnAllowed(*q)
	payload, err := dns.ExtractPayload(frame)
	if err != nil {
		r.logger.Debug("Failed to extract query", "query", q, "error", err)
		return nil
	}
	resp, err := r.upstream.Resolve(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Debug("Upstream resolution failed", "query", q, "error", err)
		if r.failure != FailureServFail {
			return nil
		}
		if resp, err = dns.ServFailResponse(q, frame, dns.IPHeaderLen(frame)); err != nil {
			r.logger.Debug("Failed to build SERVFAIL response", "query", q, "error", err)
			return nil
		}
	}
	return r.wrap(q, frame, resp)
}

func (r *Router) wrap(q *dns.Query, frame []byte, resp []byte) []byte {
	reply, err := ReplyFrame(frame, resp)
	if err != nil {
		r.logger.Debug("Failed to build reply frame", "query", q, "error", err)
		return nil
	}
	return reply
}

func (r *Router) write(reply []byte) error {
	if reply == nil {
		return nil
	}
	if _, err := r.dev.Write(reply); err != nil {
		if errors.Is(err, network.ErrMsgSize) {
			r.logger.Debug("Dropped oversized reply", "length", len(reply), "mtu", r.dev.MTU())
			return nil
		}
		return fmt.Errorf("failed to write to device: %w", err)
	}
	return nil
}
