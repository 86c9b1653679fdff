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
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/errs"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

type write struct {
	at   time.Time
	data string
}

type fakeScreen struct {
	clock   *fakeClock
	cost    time.Duration // simulated render time per write
	writes  []write
	onWrite func(n int)
	began   int
	ended   int
	failAt  int
}

func (s *fakeScreen) Begin() error { s.began++; return nil }
func (s *fakeScreen) End() error   { s.ended++; return nil }
func (s *fakeScreen) Write(p []byte) (int, error) {
	s.writes = append(s.writes, write{at: s.clock.now, data: string(p)})
	s.clock.now = s.clock.now.Add(s.cost)
	if s.onWrite != nil {
		s.onWrite(len(s.writes))
	}
	if s.failAt > 0 && len(s.writes) == s.failAt {
		return 0, errors.New("terminal gone")
	}
	return len(p), nil
}

// blockingAudio plays until stopped, like a long soundtrack.
type blockingAudio struct {
	joined atomic.Bool
}

func (a *blockingAudio) Run(ctx context.Context, sig *Signals) error {
	defer a.joined.Store(true)
	sig.MarkPlaying()
	defer sig.MarkIdle()
	for !sig.Stopped() {
		time.Sleep(time.Millisecond)
	}
	return nil
}

// ctxAudio only returns when its context ends, like a write into a stalled
// device.
type ctxAudio struct {
	joined atomic.Bool
}

func (a *ctxAudio) Run(ctx context.Context, sig *Signals) error {
	defer a.joined.Store(true)
	sig.MarkPlaying()
	<-ctx.Done()
	sig.MarkIdle()
	return nil
}

// shortAudio finishes right after it starts.
type shortAudio struct {
	joined atomic.Bool
	err    error
}

func (a *shortAudio) Run(ctx context.Context, sig *Signals) error {
	defer a.joined.Store(true)
	sig.MarkPlaying()
	sig.MarkIdle()
	return a.err
}

func grayFrame(w, h int, v byte) ascii.Frame {
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = v
	}
	return ascii.Encode(ascii.RawFrame{Width: w, Height: h, Format: ascii.Gray, Pix: pix}, ascii.Low)
}

func newScheduler(audio AudioActor) (*Scheduler, *fakeClock, *fakeScreen) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	screen := &fakeScreen{clock: clock}
	return &Scheduler{Screen: screen, Clock: clock, Audio: audio}, clock, screen
}

func TestRunCompletesAndJoinsAudio(t *testing.T) {
	audio := &shortAudio{}
	s, clock, screen := newScheduler(audio)
	frames := []ascii.Frame{grayFrame(4, 2, 0), grayFrame(4, 2, 255), grayFrame(4, 2, 120)}
	start := clock.now

	res, err := s.Run(context.Background(), NewSession(frames, 10, ascii.Low))
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Completed || res.Rendered != 3 {
		t.Fatalf("result = %+v", res)
	}
	if !audio.joined.Load() {
		t.Fatal("audio actor not joined")
	}
	if screen.began != 1 || screen.ended != 1 {
		t.Errorf("begin/end = %d/%d", screen.began, screen.ended)
	}
	if !strings.HasPrefix(screen.writes[0].data, "\x1b[H") {
		t.Errorf("first frame must redraw from home: %q", screen.writes[0].data)
	}
	if got := clock.now.Sub(start); got != 300*time.Millisecond {
		t.Errorf("session length = %v, want 300ms", got)
	}
}

func TestRunIdenticalFramesWriteNothing(t *testing.T) {
	s, _, screen := newScheduler(&shortAudio{})
	f := grayFrame(5, 3, 77)
	res, err := s.Run(context.Background(), NewSession([]ascii.Frame{f, f, f}, 25, ascii.Low))
	if err != nil {
		t.Fatal(err)
	}
	if len(screen.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(screen.writes))
	}
	if res.Rendered != 1 || res.Skipped != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunRedrawsOnlyChangedLines(t *testing.T) {
	s, _, screen := newScheduler(&shortAudio{})
	a := ascii.Frame{Width: 2, Height: 3, Glyphs: []uint8{0, 0, 1, 1, 2, 2}}
	b := ascii.Frame{Width: 2, Height: 3, Glyphs: []uint8{0, 0, 5, 5, 2, 2}}
	if _, err := s.Run(context.Background(), NewSession([]ascii.Frame{a, b}, 30, ascii.Low)); err != nil {
		t.Fatal(err)
	}
	if len(screen.writes) != 2 {
		t.Fatalf("writes = %d", len(screen.writes))
	}
	want := "\x1b[2;1H" + strings.Repeat(string(ascii.Low.Glyph(5)), 2)
	if screen.writes[1].data != want {
		t.Errorf("diff write = %q, want %q", screen.writes[1].data, want)
	}
}

func TestRunErasesRowsOfShorterFrame(t *testing.T) {
	s, _, screen := newScheduler(&shortAudio{})
	tall := ascii.Frame{Width: 1, Height: 2, Glyphs: []uint8{1, 1}}
	short := ascii.Frame{Width: 1, Height: 1, Glyphs: []uint8{1}}
	if _, err := s.Run(context.Background(), NewSession([]ascii.Frame{tall, short}, 30, ascii.Low)); err != nil {
		t.Fatal(err)
	}
	if got := screen.writes[1].data; got != "\x1b[2;1H\x1b[2K" {
		t.Errorf("erase write = %q", got)
	}
}

// Rendering slower than the frame period: every frame is still shown, in
// order, never before its due time, and no sleep is negative.
func TestRunLateFramesAreDelayedNotDropped(t *testing.T) {
	s, clock, screen := newScheduler(&shortAudio{})
	screen.cost = 70 * time.Millisecond
	var frames []ascii.Frame
	for i := 0; i < 20; i++ {
		frames = append(frames, grayFrame(3, 3, byte(i*12)))
	}
	start := clock.now
	sess := NewSession(frames, 24, ascii.Low)
	res, err := s.Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rendered != len(frames) {
		t.Fatalf("rendered %d of %d", res.Rendered, len(frames))
	}
	if res.Late == 0 {
		t.Error("expected late frames at 70ms per render and 24 fps")
	}
	for i, w := range screen.writes {
		if w.at.Before(start.Add(sess.Due(i))) {
			t.Errorf("frame %d rendered at %v, before due %v", i, w.at.Sub(start), sess.Due(i))
		}
	}
	for _, d := range clock.sleeps {
		if d < 0 {
			t.Fatalf("negative sleep %v", d)
		}
	}
}

func TestRunSleepsAreNonNegativeAcrossRates(t *testing.T) {
	for _, rate := range []uint32{1, 7, 24, 30, 60, 144} {
		s, clock, screen := newScheduler(&shortAudio{})
		screen.cost = time.Duration(rate) * time.Millisecond
		var frames []ascii.Frame
		for i := 0; i < 12; i++ {
			frames = append(frames, grayFrame(2, 2, byte(i*20)))
		}
		start := clock.now
		sess := NewSession(frames, rate, ascii.Low)
		if _, err := s.Run(context.Background(), sess); err != nil {
			t.Fatal(err)
		}
		for _, d := range clock.sleeps {
			if d < 0 {
				t.Fatalf("rate %d: negative sleep %v", rate, d)
			}
		}
		for i, w := range screen.writes {
			if w.at.Before(start.Add(sess.Due(i))) {
				t.Fatalf("rate %d: frame %d early", rate, i)
			}
		}
	}
}

func TestRunStopsBetweenFrames(t *testing.T) {
	audio := &blockingAudio{}
	s, _, screen := newScheduler(audio)
	var frames []ascii.Frame
	for i := 0; i < 10; i++ {
		frames = append(frames, grayFrame(2, 2, byte(i*25)))
	}
	sess := NewSession(frames, 30, ascii.Low)
	screen.onWrite = func(n int) {
		if n == 3 {
			sess.Stop()
		}
	}
	res, err := s.Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Stopped || res.Rendered != 3 {
		t.Fatalf("result = %+v", res)
	}
	if !audio.joined.Load() {
		t.Fatal("audio actor not joined after stop")
	}
	if screen.ended != 1 {
		t.Error("screen not restored")
	}
}

func TestRunStopReleasesStalledAudio(t *testing.T) {
	audio := &ctxAudio{}
	s, _, screen := newScheduler(audio)
	sess := NewSession([]ascii.Frame{grayFrame(1, 1, 0), grayFrame(1, 1, 255), grayFrame(1, 1, 0)}, 10, ascii.Low)
	screen.onWrite = func(int) { sess.Stop() }

	done := make(chan struct{})
	var res Result
	go func() {
		defer close(done)
		res, _ = s.Run(context.Background(), sess)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after stop")
	}
	if res.State != Stopped || !audio.joined.Load() {
		t.Fatalf("state = %v, joined = %v", res.State, audio.joined.Load())
	}
}

func TestRunContextCancel(t *testing.T) {
	audio := &blockingAudio{}
	s, _, _ := newScheduler(audio)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx, NewSession([]ascii.Frame{grayFrame(1, 1, 0)}, 10, ascii.Low))
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Stopped {
		t.Fatalf("state = %v", res.State)
	}
	if !audio.joined.Load() {
		t.Fatal("audio not joined")
	}
}

func TestRunAudioFailure(t *testing.T) {
	audio := &failingAudio{err: errs.E(errs.Device, "audio", errors.New("no device"))}
	s, _, screen := newScheduler(audio)
	_, err := s.Run(context.Background(), NewSession([]ascii.Frame{grayFrame(1, 1, 0)}, 10, ascii.Low))
	if !errs.Is(err, errs.Device) {
		t.Fatalf("want device error, got %v", err)
	}
	if screen.ended != 1 || len(screen.writes) != 0 {
		t.Errorf("ended=%d writes=%d", screen.ended, len(screen.writes))
	}
}

type failingAudio struct{ err error }

func (a *failingAudio) Run(context.Context, *Signals) error { return a.err }

func TestRunDrawFailureRestoresScreen(t *testing.T) {
	audio := &blockingAudio{}
	s, _, screen := newScheduler(audio)
	screen.failAt = 2
	frames := []ascii.Frame{grayFrame(1, 1, 0), grayFrame(1, 1, 255), grayFrame(1, 1, 0)}
	if _, err := s.Run(context.Background(), NewSession(frames, 10, ascii.Low)); err == nil {
		t.Fatal("expected draw error")
	}
	if screen.ended != 1 || !audio.joined.Load() {
		t.Error("screen or audio not cleaned up")
	}
}

func TestRunRejectsZeroRate(t *testing.T) {
	s, _, screen := newScheduler(nil)
	if _, err := s.Run(context.Background(), NewSession(nil, 0, ascii.Low)); !errs.Is(err, errs.Format) {
		t.Fatalf("got %v", err)
	}
	if screen.began != 0 {
		t.Error("screen touched for an invalid session")
	}
}

func TestKeyListener(t *testing.T) {
	sig := NewSignals()
	if err := (KeyListener{In: strings.NewReader("xyq")}).Listen(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if !sig.Stopped() {
		t.Fatal("q did not stop playback")
	}

	sig = NewSignals()
	if err := (KeyListener{In: strings.NewReader("abc")}).Listen(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if sig.Stopped() {
		t.Fatal("unexpected stop")
	}
}

// slowReader never produces a stop key.
type slowReader struct{}

func (slowReader) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	p[0] = 'z'
	return 1, nil
}

func TestKeyListenerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (KeyListener{In: slowReader{}}).Listen(ctx, NewSignals()) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not return after cancel")
	}
}

func TestSignals(t *testing.T) {
	sig := NewSignals()
	select {
	case <-sig.Started():
		t.Fatal("started before MarkPlaying")
	default:
	}
	sig.MarkPlaying()
	sig.MarkPlaying()
	<-sig.Started()
	if !sig.Playing() {
		t.Fatal("playing not set")
	}
	sig.MarkIdle()
	if sig.Playing() {
		t.Fatal("playing not cleared")
	}
}
