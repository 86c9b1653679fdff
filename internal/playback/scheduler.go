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

// Package playback paces encoded frames against the wall clock and the
// audio actor, redrawing only the terminal rows that changed.
package playback

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/boriwo/termvid/internal/errs"
)

// Screen receives rendered output. Begin and End bracket a session; End is
// called on every exit path.
type Screen interface {
	io.Writer
	Begin() error
	End() error
}

// Clock is the scheduler's time source.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// AudioActor emits the session's sound. It is the only writer of the
// playing flag and must return soon after the stop flag trips.
type AudioActor interface {
	Run(ctx context.Context, sig *Signals) error
}

// Listener blocks until the user asks to stop, then trips the stop flag.
// It returns when ctx is done.
type Listener interface {
	Listen(ctx context.Context, sig *Signals) error
}

// Silence is an audio actor for videos without sound.
type Silence struct{}

func (Silence) Run(_ context.Context, sig *Signals) error {
	sig.MarkPlaying()
	sig.MarkIdle()
	return nil
}

// Scheduler plays sessions.
type Scheduler struct {
	Screen   Screen
	Clock    Clock
	Audio    AudioActor
	Listener Listener
	Log      *zap.Logger

	buf bytes.Buffer
}

// Run plays sess until every frame has been shown or the stop flag trips.
// The audio actor is always joined before Run returns.
func (s *Scheduler) Run(ctx context.Context, sess *Session) (res Result, err error) {
	if sess.FrameRate == 0 {
		return Result{State: Idle}, errs.Errorf(errs.Format, "playback.Run", "frame rate must be positive")
	}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	clock := s.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	audio := s.Audio
	if audio == nil {
		audio = Silence{}
	}
	sig := sess.Signals

	if err := s.Screen.Begin(); err != nil {
		return Result{State: Idle}, errors.Wrap(err, "prepare screen")
	}
	defer func() {
		if endErr := s.Screen.End(); endErr != nil {
			log.Warn("restore screen", zap.Error(endErr))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		sig.Stop()
	}()

	res.State = Priming
	audioDone := make(chan error, 1)
	go func() { audioDone <- audio.Run(ctx, sig) }()
	if s.Listener != nil {
		go func() {
			if err := s.Listener.Listen(ctx, sig); err != nil {
				log.Warn("cancel listener", zap.Error(err))
			}
		}()
	}

	audioRunning := true
	select {
	case <-sig.Started():
	case err := <-audioDone:
		audioRunning = false
		if err != nil {
			sig.Stop()
			res.State = Stopped
			return res, err
		}
	case <-ctx.Done():
		sig.Stop()
	}
	log.Debug("primed", zap.Bool("audio", sig.Playing()), zap.Int("frames", len(sess.Frames)))

	res.State = Playing
	period := sess.Due(1)
	start := clock.Now()
	sess.prev = nil
	for i, f := range sess.Frames {
		if sig.Stopped() || ctx.Err() != nil {
			res.State = Stopped
			break
		}
		if audioRunning {
			select {
			case err := <-audioDone:
				audioRunning = false
				if err != nil {
					sig.Stop()
					res.State = Stopped
					return res, err
				}
			default:
			}
		}

		due := start.Add(sess.Due(i))
		if now := clock.Now(); now.Before(due) {
			clock.Sleep(due.Sub(now))
		} else if now.Sub(due) > period {
			res.Late++
		}

		lines := f.Lines(sess.Profile)
		wrote, err := s.draw(sess.prev, lines)
		if err != nil {
			sig.Stop()
			cancel()
			if audioRunning {
				<-audioDone
			}
			res.State = Stopped
			return res, errors.Wrapf(err, "draw frame %d", i)
		}
		if wrote {
			res.Rendered++
		} else {
			res.Skipped++
		}
		sess.prev = lines

		if wait := start.Add(sess.Due(i + 1)).Sub(clock.Now()); wait > 0 {
			clock.Sleep(wait)
		}
	}
	if res.State == Playing {
		res.State = Completed
	}
	res.Elapsed = clock.Now().Sub(start)

	if res.State == Stopped {
		// unblocks an audio actor stuck writing to a stalled device
		cancel()
	}
	if audioRunning {
		if err := <-audioDone; err != nil {
			return res, err
		}
	}
	log.Debug("playback finished",
		zap.Stringer("state", res.State),
		zap.Int("rendered", res.Rendered),
		zap.Int("skipped", res.Skipped),
		zap.Int("late", res.Late),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// draw writes the difference between prev and lines in a single write. It
// reports false when the frames are identical and nothing was written.
func (s *Scheduler) draw(prev, lines []string) (bool, error) {
	s.buf.Reset()
	if prev == nil {
		// raw mode disables output processing, so rows need an explicit \r
		s.buf.WriteString("\x1b[H")
		s.buf.WriteString(strings.Join(lines, "\r\n"))
	} else {
		for j, line := range lines {
			if j < len(prev) && prev[j] == line {
				continue
			}
			moveTo(&s.buf, j)
			s.buf.WriteString(line)
		}
		for j := len(lines); j < len(prev); j++ {
			moveTo(&s.buf, j)
			s.buf.WriteString("\x1b[2K")
		}
	}
	if s.buf.Len() == 0 {
		return false, nil
	}
	_, err := s.Screen.Write(s.buf.Bytes())
	return true, err
}

func moveTo(b *bytes.Buffer, row int) {
	b.WriteString("\x1b[")
	b.WriteString(strconv.Itoa(row + 1))
	b.WriteString(";1H")
}
