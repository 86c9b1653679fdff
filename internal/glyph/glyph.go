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

// Package glyph measures how much ink each character of a font leaves on a
// cell, which orders an alphabet into a brightness ramp.
package glyph

import (
	"fmt"
	"image"
	"image/draw"
	"sort"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/boriwo/termvid/internal/errs"
)

const (
	// DefaultAlphabet is every printable ASCII character.
	DefaultAlphabet = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"

	cellSize = 18
	maxColor = 65536
)

// Coverage is the ink measured for one character. Norm is scaled to 0..256
// across the calibrated alphabet.
type Coverage struct {
	Text string
	Ink  int
	Norm int
}

func (c Coverage) String() string {
	return fmt.Sprintf("%q\t%d\t%d", c.Text, c.Ink, c.Norm)
}

// Options tune the rasteriser.
type Options struct {
	DPI      float64
	FontSize float64
	// Negative is set for light text on a dark background, the usual
	// terminal setup.
	Negative bool
}

// DefaultOptions renders 14pt at 150dpi on a dark terminal.
var DefaultOptions = Options{DPI: 150, FontSize: 14, Negative: true}

// GoMono returns the embedded Go Mono font.
func GoMono() []byte { return gomono.TTF }

// Calibrate rasterises each character of alphabet and returns them sorted
// from least to most ink with equal coverages collapsed.
func Calibrate(ttf []byte, alphabet string, opts Options) ([]Coverage, error) {
	if opts.DPI <= 0 {
		opts.DPI = DefaultOptions.DPI
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultOptions.FontSize
	}
	font, err := truetype.Parse(ttf)
	if err != nil {
		return nil, errs.E(errs.Format, "glyph.Calibrate", errors.Wrap(err, "parse font"))
	}
	seen := make(map[rune]bool)
	var cov []Coverage
	for _, r := range alphabet {
		if seen[r] {
			continue
		}
		seen[r] = true
		img, err := rasterize(string(r), font, opts)
		if err != nil {
			return nil, err
		}
		ink := countInk(img, opts.Negative)
		cov = append(cov, Coverage{Text: string(r), Ink: ink})
	}
	if len(cov) < 2 {
		return nil, errs.Errorf(errs.Format, "glyph.Calibrate", "alphabet needs at least two distinct characters")
	}
	normalize(cov)
	sort.SliceStable(cov, func(i, j int) bool { return cov[i].Ink < cov[j].Ink })
	return dedupe(cov), nil
}

// Ramp joins the characters from darkest to brightest as seen on screen.
func Ramp(cov []Coverage) string {
	var b strings.Builder
	for _, c := range cov {
		b.WriteString(c.Text)
	}
	return b.String()
}

// Closest returns the coverage whose Norm is nearest below or at norm.
// cov must be sorted as Calibrate returns it.
func Closest(cov []Coverage, norm int) Coverage {
	i := sort.Search(len(cov), func(i int) bool { return cov[i].Norm > norm })
	if i == 0 {
		return cov[0]
	}
	return cov[i-1]
}

func rasterize(s string, font *truetype.Font, opts Options) (*image.RGBA, error) {
	rgba := image.NewRGBA(image.Rect(0, 0, cellSize, cellSize))
	draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)
	c := freetype.NewContext()
	c.SetDPI(opts.DPI)
	c.SetFont(font)
	c.SetFontSize(opts.FontSize)
	c.SetClip(rgba.Bounds())
	c.SetDst(rgba)
	c.SetSrc(image.Black)
	if _, err := c.DrawString(s, freetype.Pt(0, cellSize)); err != nil {
		return nil, errors.Wrapf(err, "draw %q", s)
	}
	return rgba, nil
}

func mono(v uint32) int {
	if v > maxColor/2 {
		return 1
	}
	return 0
}

// countInk counts the channels the glyph darkened. Without Negative it
// counts the untouched ones instead, reversing the ramp for light
// backgrounds.
func countInk(rgba *image.RGBA, negative bool) int {
	b := rgba.Bounds()
	light := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := rgba.At(x, y).RGBA()
			light += mono(r) + mono(g) + mono(bl)
		}
	}
	dark := 3*b.Dx()*b.Dy() - light
	if negative {
		return dark
	}
	return light
}

func normalize(cov []Coverage) {
	lo, hi := cov[0].Ink, cov[0].Ink
	for _, c := range cov {
		if c.Ink < lo {
			lo = c.Ink
		}
		if c.Ink > hi {
			hi = c.Ink
		}
	}
	for i := range cov {
		if hi == lo {
			cov[i].Norm = 0
			continue
		}
		cov[i].Norm = 256 * (cov[i].Ink - lo) / (hi - lo)
	}
}

func dedupe(cov []Coverage) []Coverage {
	out := cov[:0:0]
	for i, c := range cov {
		if i > 0 && c.Norm == cov[i-1].Norm {
			continue
		}
		out = append(out, c)
	}
	return out
}
