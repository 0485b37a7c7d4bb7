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

// Package transmitter fragments a TTML document and sends it as a
// sequence of RTP packets sharing one timestamp, over a connection
// acquired for the lifetime of a send session.
package transmitter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bbc/rtpttml/fragment"
	"github.com/bbc/rtpttml/internal/rtplog"
	"github.com/bbc/rtpttml/rtp"
	"github.com/bbc/rtpttml/ttml"
)

const (
	// DefaultMaxFragmentSize is the default cap on a fragment's
	// wire-encoded byte length.
	DefaultMaxFragmentSize = 1200
	// DefaultPayloadType is the default RTP payload type, chosen from
	// the dynamic range per RFC 3551.
	DefaultPayloadType = 96
)

// Connection is a scoped send session: acquired for the lifetime of a
// producer's use (Open/OpenCooperative), released with Close on every
// exit path including cancellation and send failure.
type Connection interface {
	// SendDoc fragments doc and sends each fragment as one RTP packet
	// carrying the same wall-clock-derived timestamp, the last marked.
	SendDoc(ctx context.Context, doc string, wallClock time.Time) error
	// NextSeqNum is the sequence number the next packet will carry.
	// It does not consume it.
	NextSeqNum() uint16
	// Close releases the underlying socket.
	Close() error
}

// Config configures a Connection.
type Config struct {
	// Address and Port identify the receiver's UDP endpoint.
	Address string
	Port    uint16
	// MaxFragmentSize caps a fragment's wire-encoded byte length. Zero
	// selects DefaultMaxFragmentSize.
	MaxFragmentSize int
	// PayloadType is the RTP payload type carried by every packet. Zero
	// selects DefaultPayloadType (note: 0 is itself a valid legacy
	// payload type, PCMU, but it cannot be selected through Config).
	PayloadType uint8
	// InitialSeqNum seeds the sequence counter. Nil selects a random
	// starting point.
	InitialSeqNum *uint16
	// TSOffset is added (mod 2^32) to every wall-clock-derived
	// timestamp. Nil selects a random offset.
	TSOffset *uint32
	// Encoding and BOM describe how TTML payloads are wire-encoded; BOM
	// is only applied to a document's first fragment.
	Encoding ttml.Encoding
	BOM      bool
	// Log receives per-send diagnostics. Nil selects a no-op logger.
	Log *zap.SugaredLogger
}

func (c Config) maxFragmentSize() int {
	if c.MaxFragmentSize <= 0 {
		return DefaultMaxFragmentSize
	}

	return c.MaxFragmentSize
}

func (c Config) payloadType() uint8 {
	if c.PayloadType == 0 {
		return DefaultPayloadType
	}

	return c.PayloadType
}

func (c Config) initialSeqNum() uint16 {
	if c.InitialSeqNum != nil {
		return *c.InitialSeqNum
	}

	return rtp.RandomUint16()
}

func (c Config) tsOffset() uint32 {
	if c.TSOffset != nil {
		return *c.TSOffset
	}

	return rtp.RandomUint32()
}

// state is the send-session bookkeeping shared by both Connection
// implementations.
type state struct {
	cfg      Config
	log      *zap.SugaredLogger
	seq      rtp.Sequencer
	tsOffset uint32
}

func newState(cfg Config) state {
	log := cfg.Log
	if log == nil {
		log = rtplog.Nop()
	}

	return state{
		cfg:      cfg,
		log:      log,
		seq:      rtp.NewFixedSequencer(cfg.initialSeqNum()),
		tsOffset: cfg.tsOffset(),
	}
}

// buildPackets fragments doc and returns one RTP packet per fragment,
// all sharing rtpTimestamp, consuming one sequence number per packet.
func (s *state) buildPackets(doc string, wallClock time.Time) ([]rtp.Packet, error) {
	rtpTS := uint32((uint64(wallClock.UnixMilli()) + uint64(s.tsOffset)) % (1 << 32)) //nolint:gosec // G115, wraps by design

	frags, err := fragment.Split(doc, s.cfg.maxFragmentSize(), s.cfg.Encoding, s.cfg.BOM)
	if err != nil {
		return nil, fmt.Errorf("transmitter: %w", err)
	}

	packets := make([]rtp.Packet, len(frags))
	for i, f := range frags {
		isFirst := i == 0
		isLast := i == len(frags)-1

		payload, err := ttml.EncodeString(f, s.cfg.Encoding, s.cfg.BOM && isFirst)
		if err != nil {
			return nil, fmt.Errorf("transmitter: encode fragment %d: %w", i, err)
		}

		packets[i] = rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         isLast,
				PayloadType:    s.cfg.payloadType(),
				SequenceNumber: s.seq.Next(),
				Timestamp:      rtpTS,
			},
			Payload: payload,
		}
	}

	return packets, nil
}

// WithConnection opens a blocking Connection, passes it to fn, and
// closes it on every return path including a panic propagating out of
// fn. It is the scoped-acquisition analogue of the Python transmitter's
// `with TTMLTransmitter(...) as conn:` context manager.
func WithConnection(cfg Config, fn func(Connection) error) error {
	return withConnection(Open, cfg, fn)
}

// WithCooperativeConnection is WithConnection backed by a cooperative
// Connection, the analogue of the Python transmitter's `async with`
// form.
func WithCooperativeConnection(cfg Config, fn func(Connection) error) error {
	return withConnection(OpenCooperative, cfg, fn)
}

func withConnection(open func(Config) (Connection, error), cfg Config, fn func(Connection) error) error {
	conn, err := open(cfg)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	return fn(conn)
}
