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
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// ErrMalformed is returned for frames that are not a well-formed IPv4 DNS-over-UDP query, and for messages whose
// question section cannot be walked. It is normally tested using errors.Is(err, dns.ErrMalformed).
var ErrMalformed = errors.New("malformed DNS frame")

// From [RFC 1035], the DNS message header contains the following fields:
//
//		                              1  1  1  1  1  1
//		0  1  2  3  4  5  6  7  8  9  0  1  2  3  4  5
//
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 |                      ID                       |
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 |QR|   Opcode  |AA|TC|RD|RA|   Z    |   RCODE   |
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 |                    QDCOUNT                    |
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 |                    ANCOUNT                    |
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 |                    NSCOUNT                    |
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 |                    ARCOUNT                    |
//	 +--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//
// [RFC 1035]: https://datatracker.ietf.org/doc/html/rfc1035#section-4.1.1
const (
	ipv4MinHeaderLen = 20
	udpHeaderLen     = 8
	dnsHeaderLen     = 12

	ipProtocolUDP = 17
	dnsPort       = uint16(53) // https://datatracker.ietf.org/doc/html/rfc1035#section-4.2

	ipProtocolByte  = 9  // The byte in the IPv4 header holding the protocol number
	ipSourceByte    = 12 // The starting byte of the IPv4 source address
	ipDestByte      = 16 // The starting byte of the IPv4 destination address
	udpDestPortByte = 2  // The starting byte of the destination port within the UDP header
	udpLengthByte   = 4  // The starting byte of the length field within the UDP header

	dnsFlagsByte   = 2      // The starting byte of the flags
	dnsQDCountByte = 4      // The starting byte of QDCOUNT
	dnsResponseBit = 0x8000 // The QR bit within the flags
)

// MinFrameLen is the shortest frame that can carry a DNS query: IPv4, UDP and DNS headers.
const MinFrameLen = ipv4MinHeaderLen + udpHeaderLen + dnsHeaderLen

// IPHeaderLen returns the IPv4 header length of the frame, as given by its IHL field.
func IPHeaderLen(frame []byte) int {
	if len(frame) == 0 {
		return 0
	}
	return int(frame[0]&0x0f) * 4
}

// ParseQuery extracts the first question of the IPv4 DNS-over-UDP query in frame.
// It returns an error wrapping [ErrMalformed] if frame is anything else.
func ParseQuery(frame []byte) (*Query, error) {
	if len(frame) < MinFrameLen {
		return nil, fmt.Errorf("frame of %d bytes is shorter than %d: %w", len(frame), MinFrameLen, ErrMalformed)
	}
	if v := frame[0] >> 4; v != 4 {
		return nil, fmt.Errorf("unsupported IP version %d: %w", v, ErrMalformed)
	}
	ihl := IPHeaderLen(frame)
	if ihl < ipv4MinHeaderLen || len(frame) < ihl+udpHeaderLen+dnsHeaderLen {
		return nil, fmt.Errorf("IP header length %d does not fit in %d bytes: %w", ihl, len(frame), ErrMalformed)
	}
	if p := frame[ipProtocolByte]; p != ipProtocolUDP {
		return nil, fmt.Errorf("IP protocol %d is not UDP: %w", p, ErrMalformed)
	}
	if port := binary.BigEndian.Uint16(frame[ihl+udpDestPortByte:]); port != dnsPort {
		return nil, fmt.Errorf("UDP destination port %d is not DNS: %w", port, ErrMalformed)
	}

	msg := frame[ihl+udpHeaderLen:]
	if binary.BigEndian.Uint16(msg[dnsFlagsByte:])&dnsResponseBit != 0 {
		return nil, fmt.Errorf("message is a response: %w", ErrMalformed)
	}
	if binary.BigEndian.Uint16(msg[dnsQDCountByte:]) < 1 {
		return nil, fmt.Errorf("message has no question: %w", ErrMalformed)
	}
	name, off, err := readName(msg, dnsHeaderLen)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("empty question name: %w", ErrMalformed)
	}
	if off+2 > len(msg) {
		return nil, fmt.Errorf("question type is missing: %w", ErrMalformed)
	}
	return &Query{
		ID:     binary.BigEndian.Uint16(msg),
		Domain: name,
		Type:   queryTypeOf(binary.BigEndian.Uint16(msg[off:])),
		Time:   time.Now(),
	}, nil
}

// SourceAddr returns the IPv4 source address of frame.
func SourceAddr(frame []byte) (netip.Addr, bool) {
	if len(frame) < ipv4MinHeaderLen {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(frame[ipSourceByte : ipSourceByte+4])), true
}

// DestinationAddr returns the IPv4 destination address of frame.
func DestinationAddr(frame []byte) (netip.Addr, bool) {
	if len(frame) < ipv4MinHeaderLen {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(frame[ipDestByte : ipDestByte+4])), true
}
