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

package transport

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
}

func TestFuncPacketDialer(t *testing.T) {
	expectedConn := &fakeConn{}
	expectedErr := errors.New("fake error")
	dialer := FuncPacketDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		require.Equal(t, "8.8.8.8:53", addr)
		return expectedConn, expectedErr
	})
	conn, err := dialer.DialPacket(context.Background(), "8.8.8.8:53")
	require.Equal(t, expectedConn, conn)
	require.Equal(t, expectedErr, err)
}

func TestUDPDialer(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()
	require.Equal(t, "udp", server.LocalAddr().Network())

	dialer := &UDPDialer{}
	conn, err := dialer.DialPacket(context.Background(), server.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	query := []byte{0x12, 0x34, 0x01, 0x00}
	_, err = conn.Write(query)
	require.NoError(t, err)
	received := make([]byte, 16)
	n, clientAddr, err := server.ReadFrom(received)
	require.NoError(t, err)
	require.Equal(t, query, received[:n])

	reply := []byte{0x12, 0x34, 0x81, 0x80}
	n, err = server.WriteTo(reply, clientAddr)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	received = make([]byte, 16)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err = conn.Read(received)
	require.NoError(t, err)
	require.Equal(t, reply, received[:n])
}

func TestUDPDialerUsesIPv4ForIPv4Address(t *testing.T) {
	const serverAddr = "127.0.0.10:53"
	dialer := &UDPDialer{}
	dialer.Dialer.Control = func(network, address string, c syscall.RawConn) error {
		require.Equal(t, "udp4", network)
		require.Equal(t, serverAddr, address)
		return nil
	}
	conn, err := dialer.DialPacket(context.Background(), serverAddr)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, serverAddr, conn.RemoteAddr().String())
}

func TestUDPDialerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dialer := &UDPDialer{}
	_, err := dialer.DialPacket(ctx, "127.0.0.1:53")
	require.Error(t, err)
}
