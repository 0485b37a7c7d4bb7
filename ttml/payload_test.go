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

package ttml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbc/rtpttml/ttml"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encodings := []ttml.Encoding{ttml.UTF8, ttml.UTF16, ttml.UTF16LE, ttml.UTF16BE}

	for _, enc := range encodings {
		for _, bom := range []bool{false, true} {
			encoded, err := ttml.EncodeString("hello, tt", enc, bom)
			require.NoError(t, err)

			decoded, err := ttml.DecodeBytes(encoded, enc, bom)
			require.NoError(t, err)
			assert.Equal(t, "hello, tt", decoded)
		}
	}
}

func TestEncodedLenMatchesEncodeString(t *testing.T) {
	for _, enc := range []ttml.Encoding{ttml.UTF8, ttml.UTF16, ttml.UTF16LE, ttml.UTF16BE} {
		for _, bom := range []bool{false, true} {
			encoded, err := ttml.EncodeString("subtitle text", enc, bom)
			require.NoError(t, err)

			n, err := ttml.EncodedLen("subtitle text", enc, bom)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), n)
		}
	}
}

func TestUTF8BOMOnlyStrippedWhenRequested(t *testing.T) {
	encoded, err := ttml.EncodeString("x", ttml.UTF8, true)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBB, 0xBF, 'x'}, encoded)

	withBOMConsumed, err := ttml.DecodeBytes(encoded, ttml.UTF8, true)
	require.NoError(t, err)
	assert.Equal(t, "x", withBOMConsumed)

	withBOMLiteral, err := ttml.DecodeBytes(encoded, ttml.UTF8, false)
	require.NoError(t, err)
	assert.Equal(t, "\xEF\xBB\xBFx", withBOMLiteral)
}

func TestPayloadEncodeDecode(t *testing.T) {
	p := ttml.Payload{UserDataWords: "<tt>caption</tt>"}

	b, err := p.Encode(ttml.UTF16LE, true)
	require.NoError(t, err)

	var out ttml.Payload
	require.NoError(t, out.Decode(b, ttml.UTF16LE, true))
	assert.Equal(t, p.UserDataWords, out.UserDataWords)
}

func TestUnknownEncodingErrors(t *testing.T) {
	_, err := ttml.EncodeString("x", ttml.Encoding(99), false)
	assert.ErrorIs(t, err, ttml.ErrUnknownEncoding)

	_, err = ttml.DecodeBytes([]byte("x"), ttml.Encoding(99), false)
	assert.ErrorIs(t, err, ttml.ErrUnknownEncoding)
}
