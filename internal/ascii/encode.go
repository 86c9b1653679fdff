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

// Package ascii turns raw pixel buffers into ramp glyphs with sparse colour
// changes.
package ascii

import (
	"math"
)

// ColorThreshold is the summed absolute channel difference above which a
// cell re-emits its colour. Lower values give more faithful colour and
// larger output.
var ColorThreshold = 24

// luminance weights in thousandths, so that pure white sums to exactly 255000
const (
	weightR = 299
	weightG = 587
	weightB = 114
)

// Brightness returns the perceptual brightness of c in [0,1].
func Brightness(c RGB) float64 {
	if c.R == c.G && c.G == c.B {
		return float64(c.R) / 255
	}
	y := weightR*int(c.R) + weightG*int(c.G) + weightB*int(c.B)
	return float64(y) / 255000
}

// Index maps a brightness to a ramp position in [0, levels-1].
func Index(brightness float64, levels int) int {
	i := int(math.Floor(brightness * float64(levels-1)))
	if i < 0 {
		return 0
	}
	if i > levels-1 {
		return levels - 1
	}
	return i
}

// Distance is the unweighted sum of absolute channel differences.
func Distance(a, b RGB) int {
	return absDiff(a.R, b.R) + absDiff(a.G, b.G) + absDiff(a.B, b.B)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Encode converts raw into one glyph per pixel. The caller guarantees the
// buffer matches the declared dimensions; see EncodeChecked.
func Encode(raw RawFrame, p Profile) Frame {
	n := raw.Width * raw.Height
	levels := p.Levels()
	f := Frame{
		Width:  raw.Width,
		Height: raw.Height,
		Glyphs: make([]uint8, n),
	}
	var last RGB
	for i := 0; i < n; i++ {
		c := raw.At(i)
		f.Glyphs[i] = uint8(Index(Brightness(c), levels))
		if i == 0 || Distance(c, last) > ColorThreshold {
			f.Marks = append(f.Marks, Mark{Pos: i, Color: c})
			last = c
		}
	}
	return f
}

// EncodeChecked validates raw before encoding it.
func EncodeChecked(raw RawFrame, p Profile) (Frame, error) {
	if err := raw.Validate(); err != nil {
		return Frame{}, err
	}
	return Encode(raw, p), nil
}
