// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dns

import (
	"fmt"
	"strings"
)

const (
	labelPointerMask = 0xC0 // Top two bits of a length byte set means a compression pointer.
	maxLabelLen      = 63   // https://datatracker.ietf.org/doc/html/rfc1035#section-2.3.4
)

// readName decodes the name starting at msg[off] and returns it together with the offset right after the name.
// A compression pointer ends the name and is skipped as 2 bytes without being followed.
func readName(msg []byte, off int) (string, int, error) {
	var name strings.Builder
	for {
		if off >= len(msg) {
			return "", 0, fmt.Errorf("name runs past the end of the message: %w", ErrMalformed)
		}
		l := int(msg[off])
		switch {
		case l == 0:
			return name.String(), off + 1, nil
		case l&labelPointerMask == labelPointerMask:
			if off+2 > len(msg) {
				return "", 0, fmt.Errorf("truncated compression pointer: %w", ErrMalformed)
			}
			return name.String(), off + 2, nil
		case l > maxLabelLen:
			return "", 0, fmt.Errorf("invalid label length %d: %w", l, ErrMalformed)
		}
		off++
		if off+l > len(msg) {
			return "", 0, fmt.Errorf("label runs past the end of the message: %w", ErrMalformed)
		}
		if name.Len() > 0 {
			name.WriteByte('.')
		}
		for _, c := range msg[off : off+l] {
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			name.WriteByte(c)
		}
		off += l
	}
}
