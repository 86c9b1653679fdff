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

package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/faiface/beep"

	"github.com/boriwo/termvid/internal/errs"
	"github.com/boriwo/termvid/internal/playback"
)

type fakeDevice struct {
	format  beep.Format
	samples [][2]float64
	writes  int
	drained bool
	closed  bool

	startErr error
	writeErr error
	onWrite  func(n int)
}

func (d *fakeDevice) Start(f beep.Format) error {
	d.format = f
	return d.startErr
}

func (d *fakeDevice) Write(_ context.Context, s [][2]float64) error {
	if d.writeErr != nil {
		return d.writeErr
	}
	d.samples = append(d.samples, s...)
	d.writes++
	if d.onWrite != nil {
		d.onWrite(d.writes)
	}
	return nil
}

func (d *fakeDevice) Drain(context.Context) error { d.drained = true; return nil }
func (d *fakeDevice) Close() error { d.closed = true; return nil }

func tone(n int) [][2]float64 {
	s := make([][2]float64, n)
	for i := range s {
		v := 0.5 * math.Sin(float64(i)/10)
		s[i] = [2]float64{v, -v}
	}
	return s
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	want := tone(3000)
	blob, err := EncodeWAV(want, 22050)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob[:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		t.Fatalf("not a wav header: %q", blob[:12])
	}

	dev := &fakeDevice{}
	sig := playback.NewSignals()
	p := &Player{Device: dev, WAV: blob, ChunkFrames: 512}
	if err := p.Run(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if dev.format.SampleRate != 22050 || dev.format.NumChannels != 2 {
		t.Errorf("device format = %+v", dev.format)
	}
	if len(dev.samples) != len(want) {
		t.Fatalf("played %d samples, want %d", len(dev.samples), len(want))
	}
	for i := range want {
		for c := 0; c < 2; c++ {
			if math.Abs(dev.samples[i][c]-want[i][c]) > 1e-3 {
				t.Fatalf("sample %d/%d = %f, want %f", i, c, dev.samples[i][c], want[i][c])
			}
		}
	}
	if dev.writes != 6 {
		t.Errorf("writes = %d, want 6 chunks of 512", dev.writes)
	}
	if !dev.drained || !dev.closed {
		t.Error("device not drained and closed")
	}
	select {
	case <-sig.Started():
	default:
		t.Error("playing never signalled")
	}
	if sig.Playing() {
		t.Error("playing flag left raised")
	}
}

func TestPlayerSignalsPlayingDuringStream(t *testing.T) {
	blob, err := EncodeWAV(tone(4096), 44100)
	if err != nil {
		t.Fatal(err)
	}
	sig := playback.NewSignals()
	var during []bool
	dev := &fakeDevice{onWrite: func(int) { during = append(during, sig.Playing()) }}
	if err := (&Player{Device: dev, WAV: blob}).Run(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	// the first write happens before MarkPlaying, later ones after
	if len(during) != 4 || during[0] || !during[1] {
		t.Errorf("playing during writes = %v", during)
	}
}

func TestPlayerStopsEarly(t *testing.T) {
	blob, err := EncodeWAV(tone(10000), 44100)
	if err != nil {
		t.Fatal(err)
	}
	sig := playback.NewSignals()
	dev := &fakeDevice{onWrite: func(n int) {
		if n == 2 {
			sig.Stop()
		}
	}}
	if err := (&Player{Device: dev, WAV: blob, ChunkFrames: 100}).Run(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	if dev.writes != 2 {
		t.Errorf("writes = %d, want 2", dev.writes)
	}
	if dev.drained || !dev.closed {
		t.Error("stopped player must close without draining")
	}
}

func TestPlayerEmptyAudio(t *testing.T) {
	sig := playback.NewSignals()
	dev := &fakeDevice{}
	if err := (&Player{Device: dev}).Run(context.Background(), sig); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sig.Started():
	default:
		t.Fatal("silent audio must still signal start")
	}
	if dev.writes != 0 {
		t.Error("device written for empty audio")
	}
}

func TestPlayerBadWAV(t *testing.T) {
	err := (&Player{Device: &fakeDevice{}, WAV: []byte("definitely not a wav")}).Run(context.Background(), playback.NewSignals())
	if !errs.Is(err, errs.Format) {
		t.Fatalf("want format error, got %v", err)
	}
}

func TestPlayerDeviceFailure(t *testing.T) {
	blob, err := EncodeWAV(tone(2048), 44100)
	if err != nil {
		t.Fatal(err)
	}
	for _, dev := range []*fakeDevice{
		{startErr: errors.New("no device")},
		{writeErr: errors.New("underrun")},
	} {
		err := (&Player{Device: dev, WAV: blob}).Run(context.Background(), playback.NewSignals())
		if !errs.Is(err, errs.Device) {
			t.Errorf("want device error, got %v", err)
		}
	}
}

func TestWriteSeekerPatchesEarlierBytes(t *testing.T) {
	var w writeSeeker
	w.Write([]byte("hello world"))
	if _, err := w.Seek(6, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("WORLD"))
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("!"))
	if got := string(w.data); got != "hello WORLD!" {
		t.Errorf("data = %q", got)
	}
	if _, err := w.Seek(-1, io.SeekStart); err == nil {
		t.Error("negative seek accepted")
	}
}

func TestEncodeWAVRejectsRate(t *testing.T) {
	if _, err := EncodeWAV(tone(10), 0); err == nil {
		t.Fatal("zero rate accepted")
	}
}

// stalledDevice accepts its first write and then blocks like a speaker
// that stopped consuming samples.
type stalledDevice struct {
	fakeDevice
	started chan struct{}
}

func (d *stalledDevice) Write(ctx context.Context, s [][2]float64) error {
	if d.writes == 0 {
		d.writes++
		close(d.started)
		return nil
	}
	return sendSamples(ctx, make(chan [2]float64), s)
}

func TestRunReturnsWhenDeviceStalls(t *testing.T) {
	blob, err := EncodeWAV(tone(8000), 22050)
	if err != nil {
		t.Fatal(err)
	}
	dev := &stalledDevice{started: make(chan struct{})}
	sig := playback.NewSignals()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&Player{Device: dev, WAV: blob, ChunkFrames: 256}).Run(ctx, sig) }()

	<-dev.started
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stalled run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("audio actor stuck in a blocked write")
	}
	if !dev.closed || dev.drained {
		t.Errorf("closed=%v drained=%v", dev.closed, dev.drained)
	}
	if sig.Playing() {
		t.Error("playing flag still raised")
	}
}

func TestSendSamplesHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sendSamples(ctx, make(chan [2]float64), tone(4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	buffered := make(chan [2]float64, 4)
	if err := sendSamples(context.Background(), buffered, tone(4)); err != nil || len(buffered) != 4 {
		t.Fatalf("err = %v, queued = %d", err, len(buffered))
	}
}
