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
	"github.com/boriwo/termvid/internal/errs"
)

// PixelFormat is the layout of a raw frame buffer.
type PixelFormat uint8

const (
	Gray PixelFormat = iota
	RGB24
)

// Channels is the number of bytes per pixel.
func (f PixelFormat) Channels() int {
	if f == Gray {
		return 1
	}
	return 3
}

func (f PixelFormat) String() string {
	if f == Gray {
		return "gray"
	}
	return "rgb24"
}

// RawFrame is a decoded picture at the target terminal resolution.
type RawFrame struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// Validate checks that the buffer matches the declared dimensions.
func (r RawFrame) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return errs.Errorf(errs.Format, "ascii.RawFrame", "invalid dimensions %dx%d", r.Width, r.Height)
	}
	if r.Format != Gray && r.Format != RGB24 {
		return errs.Errorf(errs.Format, "ascii.RawFrame", "unknown pixel format %d", r.Format)
	}
	if want := r.Width * r.Height * r.Format.Channels(); len(r.Pix) != want {
		return errs.Errorf(errs.Format, "ascii.RawFrame", "%s %dx%d needs %d bytes, got %d",
			r.Format, r.Width, r.Height, want, len(r.Pix))
	}
	return nil
}

// SameShape reports whether two frames share dimensions and pixel format.
func (r RawFrame) SameShape(o RawFrame) bool {
	return r.Width == o.Width && r.Height == o.Height && r.Format == o.Format
}

// At returns the colour of pixel i in row-major order.
func (r RawFrame) At(i int) RGB {
	if r.Format == Gray {
		v := r.Pix[i]
		return RGB{v, v, v}
	}
	o := i * 3
	return RGB{r.Pix[o], r.Pix[o+1], r.Pix[o+2]}
}
