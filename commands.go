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
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/container"
	"github.com/boriwo/termvid/internal/errs"
	"github.com/boriwo/termvid/internal/term"
)

// defaultCols and defaultRows size conversions when no terminal is attached.
const (
	defaultCols = 160
	defaultRows = 50
)

func (p *Player) playAction(c *cli.Context) error {
	ctx := c.Context
	src, err := p.chooseSource(ctx, c.Args().First())
	if err != nil {
		return err
	}
	defer src.close()
	prof, err := p.chooseProfile(c)
	if err != nil {
		return err
	}
	cols, rows, err := p.captureSize()
	if err != nil {
		return err
	}
	v, err := p.convert(ctx, src, prof, cols, rows)
	if err != nil {
		return err
	}

	if err := p.playLoop(ctx, v); err != nil {
		return err
	}
	name, err := p.prompt.ask("Save the video? Enter a file name (leave blank to skip): ")
	if err != nil || name == "" {
		return nil
	}
	return p.save(name, v)
}

// playLoop waits for enter before each playback and offers to play again.
func (p *Player) playLoop(ctx context.Context, v *container.Video) error {
	for {
		if _, err := p.prompt.ask("Press enter to play (while playing, press " +
			highlightStyle.Render("Q") + " to exit)... "); err != nil {
			return err
		}
		if _, err := p.play(ctx, v); err != nil {
			return err
		}
		again, err := p.prompt.confirm("Play again? [Y/N] ")
		if err != nil || !again {
			return nil
		}
	}
}

// chooseSource keeps asking until the locator resolves to a local file.
// Missing paths and invalid URLs are reported and asked again.
func (p *Player) chooseSource(ctx context.Context, locator string) (*source, error) {
	for {
		if locator == "" {
			var err error
			locator, err = p.prompt.ask("Enter the video's path or URL: ")
			if err != nil {
				return nil, err
			}
		}
		src, err := p.openSource(ctx, locator)
		if err == nil {
			return src, nil
		}
		if !errs.KindOf(err).Recoverable() {
			return nil, err
		}
		fmt.Fprintln(p.out, errorStyle.Render(err.Error()))
		locator = ""
	}
}

func (p *Player) chooseProfile(c *cli.Context) (ascii.Profile, error) {
	if c.IsSet("profile") {
		return p.profile(), nil
	}
	for {
		answer, err := p.prompt.ask(fmt.Sprintf("Brightness profile, low or high? (leave blank for %s) ", p.cfg.Profile))
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return p.profile(), nil
		}
		prof, err := ascii.ParseProfile(answer)
		if err == nil {
			return prof, nil
		}
		fmt.Fprintln(p.out, errorStyle.Render(err.Error()))
	}
}

// captureSize measures the terminal after the user had a chance to shrink
// the font, as often as they like.
func (p *Player) captureSize() (cols, rows int, err error) {
	for {
		if _, err := p.prompt.ask("Terminal size will be captured automatically.\n" +
			"For better quality reduce the font size now (3-5px is recommended) and press enter to capture... "); err != nil {
			return 0, 0, err
		}
		cols, rows, err = term.Size(os.Stdout)
		if err != nil {
			return 0, 0, err
		}
		fmt.Fprintf(p.out, "Terminal resolution captured: %s\n", highlightStyle.Render(fmt.Sprintf("%d X %d", cols-1, rows-2)))
		retake, err := p.prompt.confirm("Do you want to retake the resolution? (leave blank to continue) [Y/N] ")
		if err != nil {
			return 0, 0, err
		}
		if !retake {
			return cols, rows, nil
		}
	}
}

func (p *Player) replayAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: termvid replay <file"+containerExt+">", 1)
	}
	v, err := container.LoadFile(path)
	if err != nil {
		return err
	}
	_, err = p.play(c.Context, v)
	return err
}

func (p *Player) convertAction(c *cli.Context) error {
	locator := c.Args().First()
	if locator == "" {
		return cli.Exit("usage: termvid convert <source> -o <file"+containerExt+">", 1)
	}
	src, err := p.openSource(c.Context, locator)
	if err != nil {
		return err
	}
	defer src.close()

	cols, rows := c.Int("cols"), c.Int("rows")
	if cols == 0 || rows == 0 {
		tc, tr, err := term.Size(os.Stdout)
		if err != nil {
			tc, tr = defaultCols, defaultRows
		}
		if cols == 0 {
			cols = tc
		}
		if rows == 0 {
			rows = tr
		}
	}
	v, err := p.convert(c.Context, src, p.profile(), cols, rows)
	if err != nil {
		return err
	}
	return p.save(c.String("output"), v)
}

func (p *Player) infoAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: termvid info <file"+containerExt+">", 1)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.E(errs.NotFound, "info", err)
		}
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	h, err := container.ReadHeader(f)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}

	rows := [][2]string{
		{"File", path},
		{"Size", humanBytes(st.Size())},
		{"Frame rate", fmt.Sprintf("%d fps", h.FrameRate)},
		{"Profile", fmt.Sprintf("%s (%d glyphs, %d bits)", h.Profile, h.Profile.Levels(), h.Profile.Bits())},
		{"Frame block", humanBytes(int64(h.FrameDataLen))},
	}
	if c.Bool("decode") {
		v, err := container.LoadFile(path)
		if err != nil {
			return err
		}
		rows = append(rows, [2]string{"Frames", fmt.Sprint(len(v.Frames))})
		if len(v.Frames) > 0 {
			rows = append(rows, [2]string{"Grid", fmt.Sprintf("%d X %d", v.Frames[0].Width, v.Frames[0].Height)})
			if h.FrameRate > 0 {
				rows = append(rows, [2]string{"Duration", fmt.Sprintf("%.1fs", float64(len(v.Frames))/float64(h.FrameRate))})
			}
		}
		rows = append(rows, [2]string{"Audio", humanBytes(int64(len(v.Audio)))})
	}
	fmt.Fprintln(p.out, titleStyle.Render("termvid container"))
	for _, r := range rows {
		fmt.Fprintln(p.out, labelStyle.Render(r[0])+r[1])
	}
	return nil
}

func (p *Player) listAction(c *cli.Context) error {
	entries, err := p.getStore(c.Context).List(c.Context)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(p.out, mutedStyle.Render("No stored videos."))
		return nil
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTITLE\tPROFILE\tFPS\tFRAMES\tGRID\tSIZE\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%dx%d\t%s\t%s\n",
			e.Key, truncate(e.Title, 32), e.Profile, e.FrameRate, e.Frames,
			e.Width, e.Height, humanBytes(e.Size), e.Created.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
