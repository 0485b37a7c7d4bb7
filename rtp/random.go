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

import "github.com/pion/randutil"

// globalMathRandomGenerator is the default source for random initial
// sequence numbers and timestamp offsets. It is package-level so every
// Transmitter started without an explicit source still gets
// independent randomness, and swappable so tests can pin it.
var globalMathRandomGenerator = randutil.NewMathRandomGenerator()

// RandomUint16 returns a random value in [0, 2^16).
func RandomUint16() uint16 {
	return uint16(globalMathRandomGenerator.Intn(1 << 16)) // nolint: gosec // G115
}

// RandomUint32 returns a random value in [0, 2^32).
func RandomUint32() uint32 {
	return globalMathRandomGenerator.Uint32()
}
