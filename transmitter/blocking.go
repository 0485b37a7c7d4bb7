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
	"time"
)

// blockingConn is the blocking-synchronous Connection: SendDoc writes
// directly on the calling goroutine, which suspends for the duration
// of each net.Conn.Write. The Go analogue of a plain blocking socket
// send.
type blockingConn struct {
	state
	conn *net.UDPConn
}

// Open dials cfg.Address:cfg.Port and returns a blocking Connection.
// The caller must Close it on every exit path.
func Open(cfg Config) (Connection, error) {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(cfg.Address), Port: int(cfg.Port)})
	if err != nil {
		return nil, fmt.Errorf("transmitter: dial: %w", err)
	}

	return &blockingConn{state: newState(cfg), conn: conn}, nil
}

func (c *blockingConn) SendDoc(ctx context.Context, doc string, wallClock time.Time) error {
	packets, err := c.buildPackets(doc, wallClock)
	if err != nil {
		return err
	}

	for _, pkt := range packets {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("transmitter: marshal packet: %w", err)
		}

		if _, err := c.conn.Write(b); err != nil {
			c.log.Warnw("send failed", "sequenceNumber", pkt.SequenceNumber, "error", err)

			return fmt.Errorf("transmitter: write: %w", err)
		}
	}

	return nil
}

func (c *blockingConn) NextSeqNum() uint16 {
	return c.seq.Current()
}

func (c *blockingConn) Close() error {
	return c.conn.Close()
}
