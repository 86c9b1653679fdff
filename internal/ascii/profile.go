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
	"strings"

	"github.com/boriwo/termvid/internal/errs"
)

// Profile fixes the ramp and packing width of a whole video session.
type Profile uint8

const (
	Low Profile = iota
	High
)

type profileSpec struct {
	name   string
	ramp   []rune
	bits   int
	marker float32
}

// highRamp pads both ends: the darkest band stays blank and the brightest
// saturates to full blocks. Indices are what get persisted, so repeated
// glyphs are kept.
var highRamp = strings.Repeat(" ", 10) +
	".-':_,^=;><+!rc*/z?sLTv)J7(|F{C}fI31tlu[neoZ5Yxya]2ESwqkP6h9d4VpOGbUAKXHm8RD#$Bg0MNWQ%&@" +
	strings.Repeat("█", 14)

// ramps run darkest to brightest; the row separator is the symbol right
// after the last glyph, so len(ramp)+1 must fit in bits.
var profiles = [...]profileSpec{
	Low: {
		name:   "low",
		ramp:   []rune(" .-+*wGHM#&%@"),
		bits:   4,
		marker: 0.0,
	},
	High: {
		name:   "high",
		ramp:   []rune(highRamp),
		bits:   7,
		marker: 1.0,
	},
}

// Valid reports whether p is one of the known profiles.
func (p Profile) Valid() bool { return int(p) < len(profiles) }

func (p Profile) spec() profileSpec {
	if !p.Valid() {
		return profiles[Low]
	}
	return profiles[p]
}

func (p Profile) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return profiles[p].name
}

// Levels is the number of glyphs in the ramp.
func (p Profile) Levels() int { return len(p.spec().ramp) }

// Glyph returns the ramp glyph at index i, clamped to the ramp.
func (p Profile) Glyph(i uint8) rune {
	r := p.spec().ramp
	if int(i) >= len(r) {
		return r[len(r)-1]
	}
	return r[i]
}

// Ramp returns the ramp as a string.
func (p Profile) Ramp() string { return string(p.spec().ramp) }

// Separator is the reserved symbol terminating each row in a packed frame.
func (p Profile) Separator() uint8 { return uint8(p.Levels()) }

// Bits is the packing width of one symbol.
func (p Profile) Bits() int { return p.spec().bits }

// Marker is the value stored in the container header.
func (p Profile) Marker() float32 { return p.spec().marker }

// ParseProfile accepts the names used on the command line and in config files.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "l", "0":
		return Low, nil
	case "high", "h", "1":
		return High, nil
	}
	return Low, errs.Errorf(errs.Format, "ascii.ParseProfile", "unknown profile %q (use low or high)", s)
}

// ProfileFromMarker maps a container header marker back to its profile.
// Unknown markers are rejected: decoding with the wrong width corrupts every frame.
func ProfileFromMarker(m float32) (Profile, error) {
	for i, spec := range profiles {
		if spec.marker == m {
			return Profile(i), nil
		}
	}
	return Low, errs.Errorf(errs.Format, "ascii.ProfileFromMarker", "unrecognized profile marker %v", m)
}
