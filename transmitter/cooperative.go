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

package transmitter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// marshaledPacket is a packet already serialized to wire bytes, so the
// writer goroutine never touches RTP encoding, only socket I/O.
type marshaledPacket struct {
	bytes          []byte
	sequenceNumber uint16
}

// sendJob is one SendDoc request handed to the cooperative goroutine.
type sendJob struct {
	packets []marshaledPacket
	result  chan error
}

// cooperativeConn is the cooperative-single-threaded Connection: one
// background goroutine owns the socket and performs every write;
// SendDoc only suspends the calling goroutine at the channel handoff
// and while awaiting that job's result, mirroring a cooperative
// scheduler's "await socket writability" suspension point without
// blocking any other caller's progress.
type cooperativeConn struct {
	state
	conn     *net.UDPConn
	jobs     chan sendJob
	done     chan struct{}
	closed   chan struct{}
	closeOne sync.Once
}

// OpenCooperative dials cfg.Address:cfg.Port and returns a cooperative
// Connection backed by a single writer goroutine. The caller must
// Close it on every exit path; Close stops the writer goroutine and
// releases the socket.
func OpenCooperative(cfg Config) (Connection, error) {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(cfg.Address), Port: int(cfg.Port)})
	if err != nil {
		return nil, fmt.Errorf("transmitter: dial: %w", err)
	}

	c := &cooperativeConn{
		state:  newState(cfg),
		conn:   conn,
		jobs:   make(chan sendJob),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.run()

	return c, nil
}

func (c *cooperativeConn) run() {
	defer close(c.closed)

	for {
		select {
		case job, ok := <-c.jobs:
			if !ok {
				return
			}
			job.result <- c.writeAll(job.packets)
		case <-c.done:
			return
		}
	}
}

func (c *cooperativeConn) writeAll(packets []marshaledPacket) error {
	for _, p := range packets {
		if _, err := c.conn.Write(p.bytes); err != nil {
			c.log.Warnw("send failed", "sequenceNumber", p.sequenceNumber, "error", err)

			return fmt.Errorf("transmitter: write: %w", err)
		}
	}

	return nil
}

func (c *cooperativeConn) SendDoc(ctx context.Context, doc string, wallClock time.Time) error {
	packets, err := c.buildPackets(doc, wallClock)
	if err != nil {
		return err
	}

	marshaled := make([]marshaledPacket, len(packets))
	for i, pkt := range packets {
		b, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("transmitter: marshal packet: %w", err)
		}
		marshaled[i] = marshaledPacket{bytes: b, sequenceNumber: pkt.SequenceNumber}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan error, 1)

	select {
	case c.jobs <- sendJob{packets: marshaled, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return net.ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *cooperativeConn) NextSeqNum() uint16 {
	return c.seq.Current()
}

// Close stops the writer goroutine and releases the socket. It is
// idempotent: a second call (e.g. an explicit Close after a deferred
// one already ran) is a no-op.
func (c *cooperativeConn) Close() error {
	var err error
	c.closeOne.Do(func() {
		close(c.done)
		<-c.closed
		err = c.conn.Close()
	})

	return err
}
