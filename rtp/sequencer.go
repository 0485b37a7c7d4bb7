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

package rtp

import "sync/atomic"

// Sequencer hands out the sequence number each outgoing packet carries.
// It wraps mod 2^16, matching the wire field's width.
type Sequencer interface {
	// Current returns the sequence number the next packet will carry,
	// without consuming it.
	Current() uint16
	// Next consumes and returns the sequence number for the packet about
	// to be sent, then advances.
	Next() uint16
}

// NewRandomSequencer returns a Sequencer seeded from a random starting
// point, for transmitters that were not given an explicit initial value.
func NewRandomSequencer() Sequencer {
	return NewFixedSequencer(RandomUint16())
}

// NewFixedSequencer returns a Sequencer starting at exactly s, for tests
// and callers that want to pin or resume a sequence.
func NewFixedSequencer(s uint16) Sequencer {
	seq := &sequencer{}
	seq.state.Store(uint32(s))

	return seq
}

type sequencer struct {
	state atomic.Uint32
}

func (s *sequencer) Current() uint16 {
	return uint16(s.state.Load()) // nolint: gosec // G115
}

func (s *sequencer) Next() uint16 {
	cur := uint16(s.state.Load()) // nolint: gosec // G115
	s.state.Store(uint32(cur + 1))

	return cur
}
