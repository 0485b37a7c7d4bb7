// Copyright 2020 British Broadcasting Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transmitter_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bbc/rtpttml/rtp"
	"github.com/bbc/rtpttml/transmitter"
	"github.com/bbc/rtpttml/ttml"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func recvPacket(t *testing.T, conn *net.UDPConn) *rtp.Packet {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	pkt := &rtp.Packet{}
	require.NoError(t, pkt.Unmarshal(buf[:n]))

	return pkt
}

func TestBlockingSendDocFragmentsAcrossThreePackets(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	zeroSeq := uint16(0)
	zeroTS := uint32(0)
	conn, err := transmitter.Open(transmitter.Config{
		Address:         addr.IP.String(),
		Port:            uint16(addr.Port),
		MaxFragmentSize: 2,
		Encoding:        ttml.UTF8,
		InitialSeqNum:   &zeroSeq,
		TSOffset:        &zeroTS,
	})
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, uint16(0), conn.NextSeqNum())

	epoch := time.Unix(0, 0).UTC()
	require.NoError(t, conn.SendDoc(context.Background(), "ABCDE", epoch))

	p0 := recvPacket(t, rx)
	p1 := recvPacket(t, rx)
	p2 := recvPacket(t, rx)

	require.Equal(t, "AB", string(p0.Payload))
	require.Equal(t, "CD", string(p1.Payload))
	require.Equal(t, "E", string(p2.Payload))

	require.False(t, p0.Marker)
	require.False(t, p1.Marker)
	require.True(t, p2.Marker)

	require.Equal(t, p0.Timestamp, p1.Timestamp)
	require.Equal(t, p0.Timestamp, p2.Timestamp)

	require.Equal(t, uint16(0), p0.SequenceNumber)
	require.Equal(t, uint16(1), p1.SequenceNumber)
	require.Equal(t, uint16(2), p2.SequenceNumber)

	require.Equal(t, uint16(3), conn.NextSeqNum())
}

func TestCooperativeSendDocMatchesBlocking(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	zeroSeq := uint16(100)
	zeroTS := uint32(0)
	conn, err := transmitter.OpenCooperative(transmitter.Config{
		Address:       addr.IP.String(),
		Port:          uint16(addr.Port),
		Encoding:      ttml.UTF8,
		InitialSeqNum: &zeroSeq,
		TSOffset:      &zeroTS,
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SendDoc(context.Background(), "<tt/>", time.Unix(0, 0).UTC()))

	p := recvPacket(t, rx)
	require.Equal(t, "<tt/>", string(p.Payload))
	require.True(t, p.Marker)
	require.Equal(t, uint16(100), p.SequenceNumber)
	require.Equal(t, uint16(101), conn.NextSeqNum())
}

func TestSendDocRespectsContextCancellation(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	conn, err := transmitter.OpenCooperative(transmitter.Config{
		Address:  addr.IP.String(),
		Port:     uint16(addr.Port),
		Encoding: ttml.UTF8,
	})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = conn.SendDoc(ctx, "doc", time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestTSOffsetIsFixedAcrossSends(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	zeroSeq := uint16(0)
	conn, err := transmitter.Open(transmitter.Config{
		Address:       addr.IP.String(),
		Port:          uint16(addr.Port),
		Encoding:      ttml.UTF8,
		InitialSeqNum: &zeroSeq,
	})
	require.NoError(t, err)
	defer conn.Close()

	// A random TSOffset is resolved once at Open and must stay fixed
	// across every SendDoc on the same Connection, so the emitted
	// timestamp tracks wall clock rather than jumping per document.
	t0 := time.UnixMilli(1000).UTC()
	t1 := time.UnixMilli(2000).UTC()

	require.NoError(t, conn.SendDoc(context.Background(), "<a/>", t0))
	p0 := recvPacket(t, rx)

	require.NoError(t, conn.SendDoc(context.Background(), "<b/>", t1))
	p1 := recvPacket(t, rx)

	require.Equal(t, p1.Timestamp-p0.Timestamp, uint32(1000))
}

func TestCooperativeCloseIsIdempotent(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	conn, err := transmitter.OpenCooperative(transmitter.Config{
		Address:  addr.IP.String(),
		Port:     uint16(addr.Port),
		Encoding: ttml.UTF8,
	})
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NotPanics(t, func() { conn.Close() }) //nolint:errcheck
}

func TestWithConnectionClosesOnReturn(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	var captured transmitter.Connection
	err := transmitter.WithConnection(transmitter.Config{
		Address:  addr.IP.String(),
		Port:     uint16(addr.Port),
		Encoding: ttml.UTF8,
	}, func(conn transmitter.Connection) error {
		captured = conn

		return conn.SendDoc(context.Background(), "<w/>", time.Now())
	})
	require.NoError(t, err)

	p := recvPacket(t, rx)
	require.Equal(t, "<w/>", string(p.Payload))

	// The Connection was closed on return from fn; a second Close must
	// still be safe (idempotent), whichever implementation it is.
	require.NotPanics(t, func() { captured.Close() }) //nolint:errcheck
}

func TestWithCooperativeConnectionClosesOnReturn(t *testing.T) {
	rx := listen(t)
	addr := rx.LocalAddr().(*net.UDPAddr)

	err := transmitter.WithCooperativeConnection(transmitter.Config{
		Address:  addr.IP.String(),
		Port:     uint16(addr.Port),
		Encoding: ttml.UTF8,
	}, func(conn transmitter.Connection) error {
		return conn.SendDoc(context.Background(), "<w/>", time.Now())
	})
	require.NoError(t, err)

	p := recvPacket(t, rx)
	require.Equal(t, "<w/>", string(p.Payload))
}
