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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shielddns/shielddns/dns"
)

// IPv4 header layout, see https://datatracker.ietf.org/doc/html/rfc791#section-3.1
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version|  IHL  |Type of Service|          Total Length         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|         Identification        |Flags|      Fragment Offset    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Time to Live |    Protocol   |         Header Checksum       |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Source Address                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Destination Address                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	ipHeaderLen  = 20
	udpHeaderLen = 8

	ipVersionIHL     = 0x45   // Version 4, 5 words
	ipFlagDF         = 0x4000 // Don't fragment
	ipReplyTTL       = 64
	ipProtocolUDP    = 17
	ipTotalLenByte   = 2
	ipIDByte         = 4
	ipFlagsByte      = 6
	ipTTLByte        = 8
	ipProtocolByte   = 9
	ipChecksumByte   = 10
	ipSourceByte     = 12
	ipDestByte       = 16
	udpLengthByte    = 4
	udpChecksumByte  = 6
	maxReplyDNSBytes = math.MaxUint16 - ipHeaderLen - udpHeaderLen
)

// ReplyFrame wraps the DNS message resp in IPv4 and UDP headers addressed back to the sender of orig. Addresses
// and ports are swapped, with the ports read after orig's actual IP header. The reply never carries IP options.
func ReplyFrame(orig []byte, resp []byte) ([]byte, error) {
	ihl := dns.IPHeaderLen(orig)
	if ihl < ipHeaderLen || len(orig) < ihl+udpHeaderLen {
		return nil, fmt.Errorf("frame of %d bytes has no UDP header: %w", len(orig), dns.ErrMalformed)
	}
	if len(resp) > maxReplyDNSBytes {
		return nil, fmt.Errorf("DNS message of %d bytes does not fit in a datagram", len(resp))
	}
	udpLen := udpHeaderLen + len(resp)
	frame := make([]byte, ipHeaderLen+udpLen)

	ip := frame[:ipHeaderLen]
	ip[0] = ipVersionIHL
	binary.BigEndian.PutUint16(ip[ipTotalLenByte:], uint16(len(frame)))
	binary.BigEndian.PutUint16(ip[ipIDByte:], 0)
	binary.BigEndian.PutUint16(ip[ipFlagsByte:], ipFlagDF)
	ip[ipTTLByte] = ipReplyTTL
	ip[ipProtocolByte] = ipProtocolUDP
	copy(ip[ipSourceByte:ipSourceByte+4], orig[ipDestByte:ipDestByte+4])
	copy(ip[ipDestByte:ipDestByte+4], orig[ipSourceByte:ipSourceByte+4])
	binary.BigEndian.PutUint16(ip[ipChecksumByte:], Checksum(ip))

	udp := frame[ipHeaderLen:]
	origUDP := orig[ihl:]
	copy(udp[0:2], origUDP[2:4])
	copy(udp[2:4], origUDP[0:2])
	binary.BigEndian.PutUint16(udp[udpLengthByte:], uint16(udpLen))
	// A zero UDP checksum means "not computed", which IPv4 allows.
	binary.BigEndian.PutUint16(udp[udpChecksumByte:], 0)
	copy(udp[udpHeaderLen:], resp)
	return frame, nil
}

// Checksum returns the Internet checksum of header (RFC 1071): the ones' complement of the ones' complement sum of
// its 16-bit words. Computed over a header whose checksum field is zero, it gives the value to store in that field.
// Computed over a header with a correct checksum, it gives zero.
func Checksum(header []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(header); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(header[i:]))
	}
	if len(header)%2 == 1 {
		sum += uint32(header[len(header)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
