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

// Package fragment splits a TTML document into the largest possible
// character-wise substrings whose wire-encoded length fits a cap,
// mirroring the original rtpTTML transmitter's _fragmentDoc.
package fragment

import (
	"fmt"

	"github.com/bbc/rtpttml/ttml"
)

// Split partitions doc into the unique left-to-right sequence of
// substrings such that each substring's length when encoded via
// ttml.EncodeString(_, enc, bom iff it's the first fragment) is at most
// maxLen, and every substring but possibly the last is maximal under
// that constraint. An empty doc yields no fragments.
func Split(doc string, maxLen int, enc ttml.Encoding, bom bool) ([]string, error) {
	if doc == "" {
		return nil, nil
	}

	runes := []rune(doc)
	var fragments []string

	start := 0
	first := true

	for start < len(runes) {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}

		for end > start {
			candidate := string(runes[start:end])

			size, err := ttml.EncodedLen(candidate, enc, bom && first)
			if err != nil {
				return nil, fmt.Errorf("fragment: %w", err)
			}
			if size <= maxLen {
				break
			}

			end--
		}

		if end == start {
			// Even a single character exceeds maxLen under this encoding;
			// emit it anyway rather than looping forever or dropping data.
			end = start + 1
		}

		fragments = append(fragments, string(runes[start:end]))
		start = end
		first = false
	}

	return fragments, nil
}
