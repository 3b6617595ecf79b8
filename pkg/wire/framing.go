/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize caps the length prefix accepted from a device. Replies are a
// few hundred bytes of JSON; anything past this is a garbled or hostile peer.
const MaxFrameSize = 1 << 20

const prefixLen = 4

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// WriteFrame writes a 4-byte big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [prefixLen]byte

	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing frame prefix: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}

	return nil
}

// ReadFrame reads one length-prefixed frame. It rejects frames whose declared
// length exceeds MaxFrameSize rather than allocating for them.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [prefixLen]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("reading frame prefix: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: declared %d bytes", errFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return payload, nil
}
