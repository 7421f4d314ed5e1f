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
	"fmt"
)

const (
	flagsNoError  = uint16(0x8180) // QR, RD, RA; RCODE 0
	flagsServFail = uint16(0x8182) // QR, RD, RA; RCODE 2
	flagsNXDomain = uint16(0x8183) // QR, RD, RA; RCODE 3

	classINET = uint16(1)

	// BlockedTTL is the TTL in seconds of the synthesized 0.0.0.0 answer.
	BlockedTTL = uint32(300)

	// Pointer to the question name, which always starts right after the header.
	questionNamePointer = uint16(0xC000 | dnsHeaderLen)
)

// QuestionSection returns a copy of the first question (name, QTYPE and QCLASS) of the DNS message carried in frame,
// whose IPv4 header is ipHeaderLen bytes long.
func QuestionSection(frame []byte, ipHeaderLen int) ([]byte, error) {
	dnsOff := ipHeaderLen + udpHeaderLen
	if ipHeaderLen < ipv4MinHeaderLen || len(frame) < dnsOff+dnsHeaderLen {
		return nil, fmt.Errorf("frame has no DNS header: %w", ErrMalformed)
	}
	msg := frame[dnsOff:]
	_, off, err := readName(msg, dnsHeaderLen)
	if err != nil {
		return nil, err
	}
	// QTYPE and QCLASS.
	off += 4
	if off > len(msg) {
		return nil, fmt.Errorf("question runs past the end of the message: %w", ErrMalformed)
	}
	return append([]byte(nil), msg[dnsHeaderLen:off]...), nil
}

// BlockedResponse builds a DNS response to q that answers the question with a single A record for 0.0.0.0.
// The question section is copied from frame, the IPv4 frame q was parsed from.
func BlockedResponse(q *Query, frame []byte, ipHeaderLen int) ([]byte, error) {
	question, err := QuestionSection(frame, ipHeaderLen)
	if err != nil {
		return nil, err
	}
	const answerLen = 2 + 2 + 2 + 4 + 2 + 4
	resp := make([]byte, 0, dnsHeaderLen+len(question)+answerLen)
	resp = appendHeader(resp, q.ID, flagsNoError, 1)
	resp = append(resp, question...)
	resp = binary.BigEndian.AppendUint16(resp, questionNamePointer)
	resp = binary.BigEndian.AppendUint16(resp, uint16(TypeA))
	resp = binary.BigEndian.AppendUint16(resp, classINET)
	resp = binary.BigEndian.AppendUint32(resp, BlockedTTL)
	resp = binary.BigEndian.AppendUint16(resp, 4)
	resp = append(resp, 0, 0, 0, 0)
	return resp, nil
}

// NXDomainResponse builds a DNS response to q with RCODE NXDOMAIN and no records.
func NXDomainResponse(q *Query, frame []byte, ipHeaderLen int) ([]byte, error) {
	return emptyResponse(q, frame, ipHeaderLen, flagsNXDomain)
}

// ServFailResponse builds a DNS response to q with RCODE SERVFAIL and no records.
func ServFailResponse(q *Query, frame []byte, ipHeaderLen int) ([]byte, error) {
	return emptyResponse(q, frame, ipHeaderLen, flagsServFail)
}

func emptyResponse(q *Query, frame []byte, ipHeaderLen int, flags uint16) ([]byte, error) {
	question, err := QuestionSection(frame, ipHeaderLen)
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 0, dnsHeaderLen+len(question))
	resp = appendHeader(resp, q.ID, flags, 0)
	return append(resp, question...), nil
}

// appendHeader appends a header with one question, ancount answers and no other records.
func appendHeader(b []byte, id uint16, flags uint16, ancount uint16) []byte {
	b = binary.BigEndian.AppendUint16(b, id)
	b = binary.BigEndian.AppendUint16(b, flags)
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, ancount)
	b = binary.BigEndian.AppendUint16(b, 0)
	return binary.BigEndian.AppendUint16(b, 0)
}
