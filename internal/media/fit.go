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

package media

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Info describes the primary video stream of a file.
type Info struct {
	Width      int
	Height     int
	FrameRate  string // rational, as reported by the demuxer
	SampleRate int    // 0 when there is no audio stream
}

// Rate returns the rounded frame rate.
func (i Info) Rate() (uint32, error) {
	return ParseFrameRate(i.FrameRate)
}

// ParseFrameRate turns "30000/1001" or "25" into a whole number of frames
// per second.
func ParseFrameRate(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	num, den := s, "1"
	if i := strings.IndexByte(s, '/'); i >= 0 {
		num, den = s[:i], s[i+1:]
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "frame rate %q", s)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "frame rate %q", s)
	}
	if d <= 0 || n <= 0 {
		return 0, errors.Errorf("frame rate %q is not positive", s)
	}
	r := math.Round(n / d)
	if r < 1 || r > math.MaxUint32 {
		return 0, errors.Errorf("frame rate %q out of range", s)
	}
	return uint32(r), nil
}

// FitToTerminal sizes the character grid for a video. Characters are about
// twice as tall as wide, so the width is doubled to keep the aspect ratio.
// Two rows are left for the prompt and one column for the cursor.
func FitToTerminal(cols, rows, vidW, vidH int) (w, h int) {
	h = rows - 2
	maxW := cols - 1
	if h < 1 || maxW < 1 || vidW <= 0 || vidH <= 0 {
		return 0, 0
	}
	ratio := float64(vidW) / float64(vidH)
	w = int(math.Round(float64(h) * ratio * 2))
	if w > maxW {
		w = maxW
		h = int(math.Round(float64(w) / (ratio * 2)))
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
