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

package network

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const pipeQueueLen = 64

// PipeDevice is an in-memory [IPDevice]. Packets passed to [PipeDevice.Inject] are returned by Read, and packets
// passed to Write are delivered on [PipeDevice.Written]. It stands in for a TUN interface where one can't be
// created, such as in tests or unprivileged environments.
type PipeDevice struct {
	mtu       int
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	rd        *deadline
}

var (
	_ IPDevice      = (*PipeDevice)(nil)
	_ ReadDeadliner = (*PipeDevice)(nil)
)

// NewPipeDevice creates a [PipeDevice] that accepts packets of up to mtu bytes.
func NewPipeDevice(mtu int) (*PipeDevice, error) {
	if mtu <= 0 {
		return nil, fmt.Errorf("mtu must be positive, got %d", mtu)
	}
	return &PipeDevice{
		mtu:    mtu,
		in:     make(chan []byte, pipeQueueLen),
		out:    make(chan []byte, pipeQueueLen),
		closed: make(chan struct{}),
		rd:     newDeadline(),
	}, nil
}

// Inject queues a copy of packet to be returned by a future Read. It blocks while the queue is full.
func (d *PipeDevice) Inject(packet []byte) error {
	if len(packet) > d.mtu {
		return ErrMsgSize
	}
	pkt := append([]byte(nil), packet...)
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	select {
	case d.in <- pkt:
		return nil
	case <-d.closed:
		return ErrClosed
	}
}

// Written returns the channel on which packets written to the device are delivered.
func (d *PipeDevice) Written() <-chan []byte {
	return d.out
}

// Read implements [IPDevice].Read.
func (d *PipeDevice) Read(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, io.EOF
	default:
	}
	select {
	case pkt := <-d.in:
		return copy(p, pkt), nil
	case <-d.rd.done():
		return 0, os.ErrDeadlineExceeded
	case <-d.closed:
		return 0, io.EOF
	}
}

// Write implements [IPDevice].Write.
func (d *PipeDevice) Write(b []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, ErrClosed
	default:
	}
	if len(b) > d.mtu {
		return 0, ErrMsgSize
	}
	pkt := append([]byte(nil), b...)
	select {
	case d.out <- pkt:
		return len(b), nil
	case <-d.closed:
		return 0, ErrClosed
	}
}

// SetReadDeadline implements [ReadDeadliner].
func (d *PipeDevice) SetReadDeadline(t time.Time) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	d.rd.set(t)
	return nil
}

// MTU implements [IPDevice].MTU.
func (d *PipeDevice) MTU() int {
	return d.mtu
}

// Close implements [IPDevice].Close. Closing twice is not an error.
func (d *PipeDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}
