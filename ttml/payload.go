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

// Package ttml encodes and decodes the RTP payload carrying a TTML
// document fragment ("userDataWords" in the wire format this library
// speaks), under a chosen UTF encoding and an optional byte-order mark.
package ttml

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding identifies the UTF variant a payload is carried in.
type Encoding int

const (
	// UTF8 is plain UTF-8, optionally preceded by the 3-byte BOM.
	UTF8 Encoding = iota
	// UTF16 is UTF-16 with a byte-order mark deciding endianness on
	// decode; when bom is requested on encode it defaults to big-endian.
	UTF16
	// UTF16LE is UTF-16 little-endian, BOM optional.
	UTF16LE
	// UTF16BE is UTF-16 big-endian, BOM optional.
	UTF16BE
)

// ErrUnknownEncoding is returned for an Encoding value outside the
// UTF8/UTF16/UTF16LE/UTF16BE set.
var ErrUnknownEncoding = errors.New("ttml: unknown encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Payload is a single RTP-carried fragment of a TTML document.
type Payload struct {
	UserDataWords string
}

// Encode serializes p under enc, prefixed with a byte-order mark iff
// bom is true. This is the single source of truth for wire length:
// fragment sizing must call EncodedLen with identical arguments so
// fragments remain byte-identical in length when re-encoded.
func (p Payload) Encode(enc Encoding, bom bool) ([]byte, error) {
	return EncodeString(p.UserDataWords, enc, bom)
}

// Decode fills in p.UserDataWords by decoding b under enc. bom mirrors
// the encode-side knob: when true, a leading byte-order mark is
// consumed and does not become part of the string; when false, a
// leading BOM (if any) is left as a literal U+FEFF character, matching
// whatever Encode(enc, bom) with the same bom value would have produced.
func (p *Payload) Decode(b []byte, enc Encoding, bom bool) error {
	s, err := DecodeBytes(b, enc, bom)
	if err != nil {
		return err
	}
	p.UserDataWords = s

	return nil
}

// EncodeString encodes s under enc with an optional leading BOM.
func EncodeString(s string, enc Encoding, bom bool) ([]byte, error) {
	switch enc {
	case UTF8:
		if !bom {
			return []byte(s), nil
		}
		out := make([]byte, 0, len(utf8BOM)+len(s))
		out = append(out, utf8BOM...)
		out = append(out, s...)

		return out, nil

	case UTF16, UTF16BE, UTF16LE:
		encoded, err := transform.String(utf16Encoder(enc, bom), s)
		if err != nil {
			return nil, fmt.Errorf("ttml: encode: %w", err)
		}

		return []byte(encoded), nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEncoding, enc)
	}
}

// EncodedLen returns the byte length EncodeString would produce for s,
// without allocating the result twice at the caller.
func EncodedLen(s string, enc Encoding, bom bool) (int, error) {
	b, err := EncodeString(s, enc, bom)
	if err != nil {
		return 0, err
	}

	return len(b), nil
}

// DecodeBytes decodes b under enc. bom mirrors the encode-side knob:
// when true, a leading byte-order mark is consumed (and, for the
// generic UTF16 encoding, also decides endianness); when false, any
// leading BOM bytes are left as a literal U+FEFF character in the
// result, matching EncodeString(s, enc, false) for that same input.
func DecodeBytes(b []byte, enc Encoding, bom bool) (string, error) {
	switch enc {
	case UTF8:
		s := string(b)
		if bom && len(b) >= 3 && b[0] == utf8BOM[0] && b[1] == utf8BOM[1] && b[2] == utf8BOM[2] {
			s = string(b[3:])
		}

		return s, nil

	case UTF16, UTF16BE, UTF16LE:
		decoded, _, err := transform.Bytes(utf16Decoder(enc, bom), b)
		if err != nil {
			return "", fmt.Errorf("ttml: decode: %w", err)
		}

		return string(decoded), nil

	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownEncoding, enc)
	}
}

func utf16Encoder(enc Encoding, bom bool) transform.Transformer {
	endian := unicode.BigEndian
	if enc == UTF16LE {
		endian = unicode.LittleEndian
	}

	bomPolicy := unicode.IgnoreBOM
	if bom {
		bomPolicy = unicode.UseBOM
	}

	return unicode.UTF16(endian, bomPolicy).NewEncoder()
}

// utf16Decoder mirrors utf16Encoder's BOM handling: when bom is false
// the underlying endianness is fixed by enc and any BOM bytes present
// pass through as a literal character, same as the encoder produces
// with bom=false. When bom is true, a leading BOM is consumed; for the
// generic UTF16 encoding it also overrides the assumed endianness,
// falling back to big-endian if no BOM is present on the wire.
func utf16Decoder(enc Encoding, bom bool) transform.Transformer {
	endian := unicode.BigEndian
	if enc == UTF16LE {
		endian = unicode.LittleEndian
	}

	if !bom {
		return unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder()
	}

	if enc == UTF16 {
		return unicode.BOMOverride(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder())
	}

	return unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()
}
