/**
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package container

// Pack writes each symbol as a width-bit big-endian group, most significant
// bit first. A final partial byte keeps its bits at the top; the low bits
// are zero.
func Pack(syms []uint8, width int) []byte {
	out := make([]byte, 0, (len(syms)*width+7)/8)
	mask := uint32(1)<<uint(width) - 1
	var (
		acc   uint32
		nbits uint
	)
	for _, s := range syms {
		acc = acc<<uint(width) | uint32(s)&mask
		nbits += uint(width)
		for nbits >= 8 {
			nbits -= 8
			out = append(out, byte(acc>>nbits))
		}
		acc &= 1<<nbits - 1
	}
	if nbits > 0 {
		out = append(out, byte(acc<<(8-nbits)))
	}
	return out
}

// Unpack returns every complete width-bit group in data. When the padding
// of the last byte is at least width bits wide it yields trailing zero
// symbols; callers that need an exact count trim with their own framing.
func Unpack(data []byte, width int) []uint8 {
	out := make([]uint8, 0, len(data)*8/width)
	mask := uint32(1)<<uint(width) - 1
	var (
		acc   uint32
		nbits uint
	)
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		nbits += 8
		for nbits >= uint(width) {
			nbits -= uint(width)
			out = append(out, uint8(acc>>nbits&mask))
		}
		acc &= 1<<nbits - 1
	}
	return out
}
