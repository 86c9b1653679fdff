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

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/errs"
	"github.com/boriwo/termvid/internal/glyph"
)

const previewWidth = 64

func (p *Player) rampAction(c *cli.Context) error {
	ttf := glyph.GoMono()
	if path := c.String("font"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return errs.E(errs.NotFound, "ramp", err)
			}
			return errors.Wrapf(err, "read font %s", path)
		}
		ttf = data
	}
	alphabet := c.String("alphabet")
	if alphabet == "" {
		alphabet = glyph.DefaultAlphabet
	}
	opts := glyph.DefaultOptions
	opts.Negative = !c.Bool("light")

	cov, err := glyph.Calibrate(ttf, alphabet, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.out, titleStyle.Render(fmt.Sprintf("%d distinct shades", len(cov))))
	fmt.Fprintln(p.out, glyph.Ramp(cov))
	fmt.Fprintln(p.out, labelStyle.Render("low")+ascii.Low.Ramp())
	fmt.Fprintln(p.out, labelStyle.Render("high")+ascii.High.Ramp())

	if c.Bool("table") {
		tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "GLYPH\tINK\tNORM")
		for _, g := range cov {
			fmt.Fprintf(tw, "%q\t%d\t%d\n", g.Text, g.Ink, g.Norm)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintln(p.out, preview(cov, previewWidth))
	return nil
}

// preview draws a left to right gradient with the calibrated glyphs, each
// tinted with the matching xterm gray.
func preview(cov []glyph.Coverage, width int) string {
	var b strings.Builder
	for i := 0; i < width; i++ {
		norm := 256 * i / (width - 1)
		b.WriteString(xtermGray(norm))
		b.WriteString(glyph.Closest(cov, norm).Text)
	}
	b.WriteString(ascii.ResetTermColor)
	return b.String()
}

// xtermGray maps 0..256 onto the 24 step gray ramp of the 256 colour
// palette.
func xtermGray(norm int) string {
	if norm > 255 {
		norm = 255
	}
	code := 232 + (255-232)*norm/255
	return "\x1b[38;5;" + strconv.Itoa(code) + "m"
}
