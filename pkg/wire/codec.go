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

// Package wire implements the byte transform and framing the device firmware
// expects on probe payloads. The transform is an autokey XOR; it provides wire
// compatibility with the firmware, not confidentiality or integrity. Reveal of
// garbled input yields garbled bytes, never an error, so callers validate by
// attempting a structured decode of the result.
package wire

// initialKey is the seed byte of the firmware's autokey stream.
const initialKey = 171

// Obscure applies the firmware byte transform to a plaintext payload.
func Obscure(plaintext []byte) []byte {
	out := make([]byte, len(plaintext))
	key := byte(initialKey)

	for i, b := range plaintext {
		key ^= b
		out[i] = key
	}

	return out
}

// Reveal inverts Obscure. Reveal(Obscure(x)) == x for every byte sequence x.
func Reveal(ciphertext []byte) []byte {
	out := make([]byte, len(ciphertext))
	key := byte(initialKey)

	for i, b := range ciphertext {
		out[i] = key ^ b
		key = b
	}

	return out
}
