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

package receiver_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bbc/rtpttml/receiver"
	"github.com/bbc/rtpttml/rtp"
	"github.com/bbc/rtpttml/ttml"
)

type collector struct {
	mu   sync.Mutex
	docs []string
}

func (c *collector) onDocument(doc string, _ uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.docs...)
}

func sendPacket(t *testing.T, conn *net.UDPConn, to *net.UDPAddr, seq uint16, ts uint32, marker bool, payload string) {
	t.Helper()

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			Marker:         marker,
		},
		Payload: []byte(payload),
	}
	b, err := pkt.Marshal()
	require.NoError(t, err)

	_, err = conn.WriteToUDP(b, to)
	require.NoError(t, err)
}

func TestReceiverReassemblesThreeFragments(t *testing.T) {
	var c collector

	r, err := receiver.Open(receiver.Config{Encoding: ttml.UTF8, Timeout: time.Second}, c.onDocument)
	require.NoError(t, err)

	addr := r.LocalAddr().(*net.UDPAddr)

	send, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	defer send.Close()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	sendPacket(t, send, addr, 10, 42, false, "AB")
	sendPacket(t, send, addr, 11, 42, false, "CD")
	sendPacket(t, send, addr, 12, 42, true, "E")

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"ABCDE"}, c.snapshot())

	// Closing the socket unblocks the in-flight read immediately.
	require.NoError(t, r.Close())
	<-done
}

func TestReceiverEmitsNothingOnGap(t *testing.T) {
	var c collector

	r, err := receiver.Open(receiver.Config{Encoding: ttml.UTF8, Timeout: time.Second}, c.onDocument)
	require.NoError(t, err)

	addr := r.LocalAddr().(*net.UDPAddr)

	send, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	defer send.Close()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	sendPacket(t, send, addr, 20, 7, false, "AB")
	// seq 21 never sent
	sendPacket(t, send, addr, 22, 7, true, "E")

	// give the receiver a moment to process; nothing should ever arrive
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, c.snapshot())

	require.NoError(t, r.Close())
	<-done
}

func TestReceiverReordersWithinBufferDepth(t *testing.T) {
	var c collector

	r, err := receiver.Open(receiver.Config{Encoding: ttml.UTF8, BufferDepth: 5, Timeout: time.Second}, c.onDocument)
	require.NoError(t, err)

	addr := r.LocalAddr().(*net.UDPAddr)

	send, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	defer send.Close()

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	sendPacket(t, send, addr, 30, 99, false, "AB")
	sendPacket(t, send, addr, 32, 99, true, "E")
	sendPacket(t, send, addr, 31, 99, false, "CD")

	require.Eventually(t, func() bool {
		return len(c.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"ABCDE"}, c.snapshot())

	require.NoError(t, r.Close())
	<-done
}
