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

// Package assembler groups RTP fragments sharing a timestamp back into
// a TTML document, verifying contiguity before delivery and dropping
// whatever is in flight on loss or a timestamp change mid-document.
package assembler

import (
	"sort"

	"go.uber.org/zap"

	"github.com/bbc/rtpttml/internal/rtplog"
	"github.com/bbc/rtpttml/rtp"
	"github.com/bbc/rtpttml/seqnum"
	"github.com/bbc/rtpttml/ttml"
)

// DocumentFunc is invoked once per successfully reassembled document,
// in RTP-timestamp order, serialized with every other call (the
// assembler never invokes it concurrently with itself).
type DocumentFunc func(doc string, timestamp uint32)

// Assembler is a per-receiver, single in-flight-document state
// machine. It is not safe for concurrent use.
type Assembler struct {
	encoding   ttml.Encoding
	bom        bool
	onDocument DocumentFunc
	log        *zap.SugaredLogger

	currentTimestamp uint32
	fragmentKeys     []uint64
	fragments        map[uint64]string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger attaches a logger for discard/drop visibility. The
// default is a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(a *Assembler) {
		if log != nil {
			a.log = log
		}
	}
}

// WithBOM declares that the first fragment of each document carries a
// leading byte-order mark, mirroring the transmitter's bom knob. The
// default is false.
func WithBOM(bom bool) Option {
	return func(a *Assembler) {
		a.bom = bom
	}
}

// New returns an Assembler that decodes TTML payloads under enc and
// calls onDocument for each completed document.
func New(enc ttml.Encoding, onDocument DocumentFunc, opts ...Option) *Assembler {
	a := &Assembler{
		encoding:   enc,
		onDocument: onDocument,
		log:        rtplog.Nop(),
		fragments:  make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// ProcessPacket folds pkt into the in-flight document, discarding any
// prior partial document if pkt's timestamp differs, and triggers
// reassembly when pkt is marked as the last fragment.
//
// Note: currentTimestamp starts at its zero value rather than behind
// an "is this the first packet ever" guard, matching the original
// rtpTTML receiver's _curTimestamp = 0 initialisation. A genuinely
// first document stamped with RTP timestamp 0 is therefore treated as
// a continuation of "no document yet" rather than a fresh one; this
// is reproduced deliberately, not fixed.
func (a *Assembler) ProcessPacket(pkt *rtp.Packet) {
	if pkt.Timestamp != a.currentTimestamp {
		if len(a.fragments) > 0 {
			a.log.Debugw("timestamp changed mid-document, discarding partial document",
				"oldTimestamp", a.currentTimestamp, "newTimestamp", pkt.Timestamp)
		}
		a.clear()
		a.currentTimestamp = pkt.Timestamp
	}

	isFirst := len(a.fragmentKeys) == 0

	var key uint64
	if isFirst {
		key = uint64(pkt.SequenceNumber)
	} else {
		key = seqnum.Unwrap(a.maxKey(), pkt.SequenceNumber)
	}

	chars, err := ttml.DecodeBytes(pkt.Payload, a.encoding, a.bom && isFirst)
	if err != nil {
		a.log.Warnw("failed to decode TTML payload, dropping fragment", "error", err)

		return
	}

	if _, exists := a.fragments[key]; !exists {
		a.fragmentKeys = append(a.fragmentKeys, key)
	}
	a.fragments[key] = chars

	if pkt.Marker {
		a.processFragments()
	}
}

func (a *Assembler) maxKey() uint64 {
	max := a.fragmentKeys[0]
	for _, k := range a.fragmentKeys[1:] {
		if k > max {
			max = k
		}
	}

	return max
}

func (a *Assembler) processFragments() {
	if len(a.fragments) == 0 {
		return
	}

	keys := append([]uint64(nil), a.fragmentKeys...)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	minKey, maxKey := keys[0], keys[len(keys)-1]
	if uint64(len(a.fragments)) != maxKey-minKey+1 {
		a.log.Debugw("gap in document, discarding", "fragments", len(a.fragments),
			"minKey", minKey, "maxKey", maxKey, "timestamp", a.currentTimestamp)
		a.clear()

		return
	}

	doc := make([]byte, 0, len(a.fragments)*64)
	for _, k := range keys {
		doc = append(doc, a.fragments[k]...)
	}
	timestamp := a.currentTimestamp

	a.clear()
	a.onDocument(string(doc), timestamp)
}

func (a *Assembler) clear() {
	a.fragmentKeys = nil
	a.fragments = make(map[uint64]string)
}
