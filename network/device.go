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

import "time"

// IPDevice is a generic network device that reads and writes IP packets, such as a TUN interface.
//
// Read and Write may be called concurrently with each other, but callers must not issue concurrent Writes.
type IPDevice interface {
	// Close closes this device. Any blocked Read is unblocked. Future Reads return io.EOF and Writes return ErrClosed.
	Close() error

	// Read reads one IP packet into p and returns its length. It blocks until a packet arrives. Fragmented packets
	// are returned as they are, without reassembly.
	//
	// If len(p) is smaller than the packet, the excess bytes are discarded and a nil error is returned. Use MTU to
	// size the buffer.
	Read(p []byte) (int, error)

	// Write writes the IP packet b to this device. Write returns (0, ErrMsgSize) if len(b) > MTU().
	//
	// A nil error means the whole packet was written. A partial write returns the number of bytes written along
	// with a non-nil error.
	Write(b []byte) (int, error)

	// MTU returns the size of the Maximum Transmission Unit for this device, which is the maximum size of a single IP
	// packet that can be received or sent.
	MTU() int
}

// ReadDeadliner is implemented by devices whose Read can be interrupted by a deadline, like [os.File] for a
// pollable TUN descriptor. A Read that times out returns an error wrapping [os.ErrDeadlineExceeded].
type ReadDeadliner interface {
	// SetReadDeadline sets the deadline for pending and future Reads. A zero value means Reads don't time out.
	SetReadDeadline(t time.Time) error
}
