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

package ascii

import (
	"strconv"
	"strings"

	"github.com/boriwo/termvid/internal/errs"
)

// ResetTermColor restores the terminal's default attributes.
const ResetTermColor = "\x1B[0m"

// RGB is a 24-bit colour.
type RGB struct {
	R, G, B uint8
}

// Mark re-emits the full colour at glyph position Pos.
type Mark struct {
	Pos   int
	Color RGB
}

// Frame is one encoded picture: ramp indices in row-major order plus the
// sparse list of colour changes. Frames loaded from a container carry no
// marks and render monochrome.
type Frame struct {
	Width  int
	Height int
	Glyphs []uint8
	Marks  []Mark
}

func termColor(c RGB) string {
	return "\x1B[38;2;" + strconv.Itoa(int(c.R)) + ";" + strconv.Itoa(int(c.G)) + ";" + strconv.Itoa(int(c.B)) + "m"
}

// Lines renders one string per row. A row whose first cell has no mark
// starts with the colour still in effect, so a single row can be redrawn
// on its own.
func (f Frame) Lines(p Profile) []string {
	lines := make([]string, f.Height)
	var (
		buf  strings.Builder
		cur  RGB
		have bool
		mi   int
	)
	for y := 0; y < f.Height; y++ {
		buf.Reset()
		for x := 0; x < f.Width; x++ {
			pos := y*f.Width + x
			if mi < len(f.Marks) && f.Marks[mi].Pos == pos {
				cur, have = f.Marks[mi].Color, true
				buf.WriteString(termColor(cur))
				mi++
			} else if x == 0 && have {
				buf.WriteString(termColor(cur))
			}
			buf.WriteRune(p.Glyph(f.Glyphs[pos]))
		}
		lines[y] = buf.String()
	}
	return lines
}

// Render joins the rows with newlines.
func (f Frame) Render(p Profile) string {
	return strings.Join(f.Lines(p), "\n")
}

// SameGlyphs compares dimensions and glyphs, ignoring colour.
func (f Frame) SameGlyphs(o Frame) bool {
	if f.Width != o.Width || f.Height != o.Height || len(f.Glyphs) != len(o.Glyphs) {
		return false
	}
	for i := range f.Glyphs {
		if f.Glyphs[i] != o.Glyphs[i] {
			return false
		}
	}
	return true
}

// StripColor returns the frame without marks, the form that is persisted.
func (f Frame) StripColor() Frame {
	f.Marks = nil
	return f
}

// Symbols flattens the frame into the stream that gets bit-packed: each row
// is followed by the profile's separator.
func (f Frame) Symbols(p Profile) []uint8 {
	sep := p.Separator()
	out := make([]uint8, 0, len(f.Glyphs)+f.Height)
	for y := 0; y < f.Height; y++ {
		out = append(out, f.Glyphs[y*f.Width:(y+1)*f.Width]...)
		out = append(out, sep)
	}
	return out
}

// FrameFromSymbols rebuilds a frame from an unpacked symbol stream. Symbols
// after the last separator are packing padding and are ignored.
func FrameFromSymbols(p Profile, syms []uint8) (Frame, error) {
	sep := p.Separator()
	f := Frame{Glyphs: make([]uint8, 0, len(syms))}
	width := 0
	for _, s := range syms {
		switch {
		case s == sep:
			if f.Height == 0 {
				f.Width = width
			} else if width != f.Width {
				return Frame{}, errs.Errorf(errs.Codec, "ascii.FrameFromSymbols",
					"row %d has %d glyphs, want %d", f.Height, width, f.Width)
			}
			f.Height++
			width = 0
		case s > sep:
			return Frame{}, errs.Errorf(errs.Codec, "ascii.FrameFromSymbols",
				"symbol %d outside %s ramp", s, p)
		default:
			f.Glyphs = append(f.Glyphs, s)
			width++
		}
	}
	f.Glyphs = f.Glyphs[:f.Width*f.Height]
	return f, nil
}
