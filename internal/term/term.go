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

// Package term owns the terminal during playback: alternate buffer, hidden
// cursor and raw input, all restored afterwards.
package term

import (
	"io"
	"os"

	"github.com/pkg/errors"
	xterm "golang.org/x/term"
)

const (
	altBufferOn  = "\x1b[?1049h"
	altBufferOff = "\x1b[?1049l"
	hideCursor   = "\x1b[?25l"
	showCursor   = "\x1b[?25h"
	clearScreen  = "\x1b[2J\x1b[H"
	resetColor   = "\x1b[0m"
)

// Screen draws to Out. When In is a terminal it is switched to raw mode
// for the session so single key presses reach the cancel listener.
type Screen struct {
	Out io.Writer
	In  *os.File

	raw    *xterm.State
	active bool
}

// New returns a screen on stdout reading keys from stdin.
func New() *Screen {
	return &Screen{Out: os.Stdout, In: os.Stdin}
}

func (s *Screen) Write(p []byte) (int, error) {
	return s.Out.Write(p)
}

func (s *Screen) Begin() error {
	if s.In != nil && xterm.IsTerminal(int(s.In.Fd())) {
		st, err := xterm.MakeRaw(int(s.In.Fd()))
		if err != nil {
			return errors.Wrap(err, "raw mode")
		}
		s.raw = st
	}
	s.active = true
	if _, err := io.WriteString(s.Out, altBufferOn+hideCursor+clearScreen); err != nil {
		s.End()
		return errors.Wrap(err, "enter alternate buffer")
	}
	return nil
}

// End restores the terminal. It is safe to call more than once.
func (s *Screen) End() error {
	if !s.active {
		return nil
	}
	s.active = false
	_, werr := io.WriteString(s.Out, resetColor+showCursor+altBufferOff)
	if s.raw != nil {
		err := xterm.Restore(int(s.In.Fd()), s.raw)
		s.raw = nil
		if err != nil {
			return errors.Wrap(err, "restore terminal mode")
		}
	}
	return errors.Wrap(werr, "leave alternate buffer")
}

// Size returns the terminal's columns and rows.
func Size(f *os.File) (cols, rows int, err error) {
	cols, rows, err = xterm.GetSize(int(f.Fd()))
	if err != nil {
		return 0, 0, errors.Wrap(err, "terminal size")
	}
	return cols, rows, nil
}

// IsTerminal reports whether f is attached to a TTY.
func IsTerminal(f *os.File) bool {
	return f != nil && xterm.IsTerminal(int(f.Fd()))
}
