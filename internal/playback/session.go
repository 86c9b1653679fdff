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

package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/boriwo/termvid/internal/ascii"
)

// State is the lifecycle of a playback session.
type State int

const (
	Idle State = iota
	Priming
	Playing
	Stopped
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Priming:
		return "priming"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Signals is the only state shared between the scheduler, the audio actor
// and the cancel listener.
type Signals struct {
	stop      atomic.Bool
	playing   atomic.Bool
	startOnce sync.Once
	started   chan struct{}
}

// NewSignals returns cleared signals.
func NewSignals() *Signals {
	return &Signals{started: make(chan struct{})}
}

// Stop asks every actor to wind down. Safe from any goroutine.
func (s *Signals) Stop() { s.stop.Store(true) }

// Stopped reports whether Stop has been called.
func (s *Signals) Stopped() bool { return s.stop.Load() }

// MarkPlaying is called by the audio actor once sound is being emitted.
func (s *Signals) MarkPlaying() {
	s.playing.Store(true)
	s.startOnce.Do(func() { close(s.started) })
}

// MarkIdle is called by the audio actor when it stops emitting sound.
func (s *Signals) MarkIdle() { s.playing.Store(false) }

// Playing reports whether audio is currently being emitted.
func (s *Signals) Playing() bool { return s.playing.Load() }

// Started is closed the first time MarkPlaying is called.
func (s *Signals) Started() <-chan struct{} { return s.started }

// Session is the state of one playback invocation.
type Session struct {
	Frames    []ascii.Frame
	FrameRate uint32
	Profile   ascii.Profile
	Signals   *Signals

	prev []string
}

// NewSession prepares frames for playback at rate frames per second.
func NewSession(frames []ascii.Frame, rate uint32, p ascii.Profile) *Session {
	return &Session{
		Frames:    frames,
		FrameRate: rate,
		Profile:   p,
		Signals:   NewSignals(),
	}
}

// Stop requests cancellation before the next frame.
func (s *Session) Stop() { s.Signals.Stop() }

// Due is the offset of frame i from the session start.
func (s *Session) Due(i int) time.Duration {
	return time.Duration(int64(i) * int64(time.Second) / int64(s.FrameRate))
}

// Result summarises a finished session.
type Result struct {
	State    State
	Rendered int
	Skipped  int // identical to the previous frame, nothing written
	Late     int // started more than one frame period after its due time
	Elapsed  time.Duration
}
