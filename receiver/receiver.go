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

// Package receiver owns a UDP socket bound to a fixed port and drives
// an OrderedBuffer into a FragmentAssembler, delivering reassembled
// TTML documents to a consumer callback.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/bbc/rtpttml/assembler"
	"github.com/bbc/rtpttml/internal/rtplog"
	"github.com/bbc/rtpttml/reorder"
	"github.com/bbc/rtpttml/rtp"
	"github.com/bbc/rtpttml/ttml"
)

const (
	// DefaultRecvBufSize is the default maximum datagram size read per
	// iteration of the receive loop.
	DefaultRecvBufSize = 65536
	// DefaultTimeout is the default read timeout applied to the socket.
	DefaultTimeout = 30 * time.Second
)

// Config configures a Receiver.
type Config struct {
	// Port is the local UDP port to bind; the receiver always binds to
	// the wildcard address.
	Port uint16
	// RecvBufSize bounds how many bytes are read per datagram, in
	// [1, 65536]. Zero selects DefaultRecvBufSize.
	RecvBufSize int
	// Timeout is applied to every socket read. Zero selects
	// DefaultTimeout; a negative value disables the read deadline.
	Timeout time.Duration
	// Encoding and BOM describe how TTML payloads are wire-encoded.
	Encoding ttml.Encoding
	BOM      bool
	// BufferDepth is the OrderedBuffer's reordering depth. Zero selects
	// reorder.DefaultSize.
	BufferDepth int
	// Log receives per-packet and drop diagnostics. Nil selects a
	// no-op logger.
	Log *zap.SugaredLogger
}

func (c Config) recvBufSize() int {
	if c.RecvBufSize <= 0 {
		return DefaultRecvBufSize
	}

	return c.RecvBufSize
}

func (c Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}

	return c.Timeout
}

func (c Config) bufferDepth() int {
	if c.BufferDepth <= 0 {
		return reorder.DefaultSize
	}

	return c.BufferDepth
}

// DocumentFunc is invoked once per reassembled document. It is called
// synchronously from the receive loop and must not block indefinitely.
type DocumentFunc func(doc string, timestamp uint32)

// Receiver owns one UDP socket, an OrderedBuffer and a
// FragmentAssembler. It is not safe for concurrent use: Run drives a
// single receive loop.
type Receiver struct {
	conn   *net.UDPConn
	buffer *reorder.Buffer[*rtp.Packet]
	asm    *assembler.Assembler
	cfg    Config
	log    *zap.SugaredLogger
}

// Open binds a UDP socket on cfg.Port and returns a Receiver ready for
// Run. The caller must call Close when done, including on error paths
// reached after Open succeeds.
func Open(cfg Config, onDocument DocumentFunc) (*Receiver, error) {
	log := cfg.Log
	if log == nil {
		log = rtplog.Nop()
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(cfg.Port)})
	if err != nil {
		return nil, fmt.Errorf("receiver: listen: %w", err)
	}

	return &Receiver{
		conn:   conn,
		buffer: reorder.New[*rtp.Packet](cfg.bufferDepth(), reorder.MaxSeqNum),
		asm:    assembler.New(cfg.Encoding, onDocument, assembler.WithLogger(log), assembler.WithBOM(cfg.BOM)),
		cfg:    cfg,
		log:    log,
	}, nil
}

// Close releases the underlying socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// Run drives the receive loop until ctx is cancelled or a read fails,
// including by timing out. One iteration reads a datagram,
// parses it to an RTP packet, pushes it into the reorder buffer, and
// hands every packet the buffer releases to the assembler in order. A
// read timeout ends Run without touching assembler state.
func (r *Receiver) Run(ctx context.Context) error {
	buf := make([]byte, r.cfg.recvBufSize())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if timeout := r.cfg.timeout(); timeout > 0 {
			if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("receiver: set read deadline: %w", err)
			}
		}

		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("receiver: read timed out: %w", err)
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("receiver: read: %w", err)
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			r.log.Warnw("dropping malformed RTP packet", "error", err)

			continue
		}

		for _, p := range r.buffer.PushGet(uint32(pkt.SequenceNumber), pkt) {
			r.asm.ProcessPacket(p)
		}
	}
}

// LocalAddr returns the address the receiver's socket is bound to.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}
