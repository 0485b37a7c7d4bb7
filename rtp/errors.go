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

import "errors"

var (
	// ErrHeaderSizeInsufficient is returned when buf is too short to hold a
	// fixed RTP header.
	ErrHeaderSizeInsufficient = errors.New("rtp: header size insufficient")
	// ErrHeaderSizeInsufficientForExtension is returned when buf is too
	// short to hold the header extension it declares.
	ErrHeaderSizeInsufficientForExtension = errors.New("rtp: header size insufficient for extension")
	// ErrTooSmall is returned when buf is too short to hold the padding it declares.
	ErrTooSmall = errors.New("rtp: packet too small")
	// ErrInvalidPadding is returned when the padding bit is set but the padding size is zero.
	ErrInvalidPadding = errors.New("rtp: invalid padding size")
)
