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
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/shielddns/shielddns/internal/testframe"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

func parseForTest(t *testing.T, frame []byte) *Query {
	q, err := ParseQuery(frame)
	require.NoError(t, err)
	return q
}

func TestQuestionSection(t *testing.T) {
	frame := testframe.QueryFrame(t, 3, "ads.example.com", layers.DNSTypeAAAA)
	question, err := QuestionSection(frame, IPHeaderLen(frame))
	require.NoError(t, err)
	want := append([]byte{3, 'a', 'd', 's', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}, 0, 28, 0, 1)
	require.Equal(t, want, question)

	_, err = QuestionSection(frame[:len(frame)-1], IPHeaderLen(frame))
	require.ErrorIs(t, err, ErrMalformed)
	_, err = QuestionSection(frame[:30], IPHeaderLen(frame))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestBlockedResponse(t *testing.T) {
	frame := testframe.QueryFrame(t, 0xabcd, "tracker.example.com", layers.DNSTypeA)
	q := parseForTest(t, frame)
	resp, err := BlockedResponse(q, frame, IPHeaderLen(frame))
	require.NoError(t, err)

	require.Equal(t, []byte{0xab, 0xcd}, resp[0:2])
	require.Equal(t, uint16(0x8180), binary.BigEndian.Uint16(resp[2:]))
	require.Equal(t, []byte{0, 1, 0, 1, 0, 0, 0, 0}, resp[4:12])

	question, err := QuestionSection(frame, IPHeaderLen(frame))
	require.NoError(t, err)
	require.Equal(t, question, resp[12:12+len(question)])

	answer := resp[12+len(question):]
	require.Equal(t, []byte{
		0xc0, 0x0c, // name
		0x00, 0x01, // A
		0x00, 0x01, // IN
		0x00, 0x00, 0x01, 0x2c, // TTL 300
		0x00, 0x04, // RDLENGTH
		0x00, 0x00, 0x00, 0x00, // 0.0.0.0
	}, answer)

	var msg dnsmessage.Message
	require.NoError(t, msg.Unpack(resp))
	require.True(t, msg.Header.Response)
	require.Equal(t, dnsmessage.RCodeSuccess, msg.Header.RCode)
	require.Len(t, msg.Answers, 1)
	require.Equal(t, "tracker.example.com.", msg.Answers[0].Header.Name.String())
	require.Equal(t, uint32(300), msg.Answers[0].Header.TTL)
	require.Equal(t, &dnsmessage.AResource{A: [4]byte{}}, msg.Answers[0].Body)
}

func TestBlockedResponseLongIPHeader(t *testing.T) {
	frame := testframe.IPv4UDP(t, testframe.Client, testframe.Resolver,
		testframe.DNSQuery(t, 77, "ads.example.com", layers.DNSTypeA), testframe.RouterAlert)
	q := parseForTest(t, frame)
	resp, err := BlockedResponse(q, frame, IPHeaderLen(frame))
	require.NoError(t, err)

	var msg dnsmessage.Message
	require.NoError(t, msg.Unpack(resp))
	require.Equal(t, uint16(77), msg.Header.ID)
	require.Len(t, msg.Questions, 1)
	require.Equal(t, "ads.example.com.", msg.Questions[0].Name.String())
}

func TestBlockedResponseRejectsTruncatedQuestion(t *testing.T) {
	frame := testframe.QueryFrame(t, 1, "example.com", layers.DNSTypeA)
	q := parseForTest(t, frame)
	_, err := BlockedResponse(q, frame[:len(frame)-2], IPHeaderLen(frame))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNXDomainResponse(t *testing.T) {
	frame := testframe.QueryFrame(t, 0x0102, "ads.example.com", layers.DNSTypeA)
	q := parseForTest(t, frame)
	resp, err := NXDomainResponse(q, frame, IPHeaderLen(frame))
	require.NoError(t, err)

	question, err := QuestionSection(frame, IPHeaderLen(frame))
	require.NoError(t, err)
	require.Len(t, resp, 12+len(question))
	require.Equal(t, []byte{0x01, 0x02, 0x81, 0x83, 0, 1, 0, 0, 0, 0, 0, 0}, resp[:12])
	require.Equal(t, question, resp[12:])

	var msg dnsmessage.Message
	require.NoError(t, msg.Unpack(resp))
	require.Equal(t, dnsmessage.RCodeNameError, msg.Header.RCode)
	require.Empty(t, msg.Answers)
}

func TestServFailResponse(t *testing.T) {
	frame := testframe.QueryFrame(t, 5, "slow.example.com", layers.DNSTypeAAAA)
	q := parseForTest(t, frame)
	resp, err := ServFailResponse(q, frame, IPHeaderLen(frame))
	require.NoError(t, err)

	var msg dnsmessage.Message
	require.NoError(t, msg.Unpack(resp))
	require.Equal(t, dnsmessage.RCodeServerFailure, msg.Header.RCode)
	require.Equal(t, dnsmessage.TypeAAAA, msg.Questions[0].Type)
	require.Empty(t, msg.Answers)
}
