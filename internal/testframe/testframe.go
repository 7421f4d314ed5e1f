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

// Package testframe builds and decodes IPv4/UDP/DNS frames for tests.
package testframe

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	// Client is the address queries are sent from.
	Client = netip.MustParseAddrPort("10.111.222.2:40000")
	// Resolver is the address queries are sent to.
	Resolver = netip.MustParseAddrPort("10.111.222.1:53")
)

// DNSQuery returns the wire format of a DNS query with one question.
func DNSQuery(t testing.TB, id uint16, domain string, qtype layers.DNSType) []byte {
	msg := layers.DNS{
		ID:      id,
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{{
			Name:  []byte(domain),
			Type:  qtype,
			Class: layers.DNSClassIN,
		}},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, msg.SerializeTo(buf, gopacket.SerializeOptions{}))
	return buf.Bytes()
}

// DNSAnswer returns the wire format of a response to query answering with a single A record for ip.
func DNSAnswer(t testing.TB, query []byte, ip netip.Addr) []byte {
	var msg layers.DNS
	require.NoError(t, msg.DecodeFromBytes(query, gopacket.NilDecodeFeedback))
	require.NotEmpty(t, msg.Questions)
	msg.QR = true
	msg.RA = true
	msg.ANCount = 1
	msg.Answers = []layers.DNSResourceRecord{{
		Name:  msg.Questions[0].Name,
		Type:  layers.DNSTypeA,
		Class: layers.DNSClassIN,
		TTL:   60,
		IP:    net.IP(ip.AsSlice()),
	}}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, msg.SerializeTo(buf, gopacket.SerializeOptions{FixLengths: true}))
	return buf.Bytes()
}

// IPv4UDP wraps payload in UDP and IPv4 headers with valid lengths and checksums.
// Options, if any, make the IPv4 header longer than 20 bytes.
func IPv4UDP(t testing.TB, src, dst netip.AddrPort, payload []byte, options ...layers.IPv4Option) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       0x1234,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(src.Addr().AsSlice()),
		DstIP:    net.IP(dst.Addr().AsSlice()),
		Options:  options,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// QueryFrame returns a complete frame carrying a DNS query from [Client] to [Resolver].
func QueryFrame(t testing.TB, id uint16, domain string, qtype layers.DNSType) []byte {
	return IPv4UDP(t, Client, Resolver, DNSQuery(t, id, domain, qtype))
}

// RouterAlert is a 4-byte IPv4 option, handy to get a 24-byte header.
var RouterAlert = layers.IPv4Option{OptionType: 148, OptionLength: 4, OptionData: []byte{0, 0}}

// Decoded holds the layers of a decoded IPv4/UDP/DNS frame.
type Decoded struct {
	IP  *layers.IPv4
	UDP *layers.UDP
	DNS *layers.DNS
}

// Decode parses frame as IPv4/UDP/DNS and fails the test if any layer is missing or broken.
func Decode(t testing.TB, frame []byte) Decoded {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.Default)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		require.NoError(t, errLayer.Error())
	}
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	require.NotNil(t, ipLayer, "missing IPv4 layer")
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	require.NotNil(t, udpLayer, "missing UDP layer")
	dnsLayer := pkt.Layer(layers.LayerTypeDNS)
	require.NotNil(t, dnsLayer, "missing DNS layer")
	return Decoded{
		IP:  ipLayer.(*layers.IPv4),
		UDP: udpLayer.(*layers.UDP),
		DNS: dnsLayer.(*layers.DNS),
	}
}
