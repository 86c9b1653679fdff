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
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/pkg/errors"
)

// Device is an audio sink. Write blocks while the device buffer is full,
// which paces the caller at the playback rate; it gives up when ctx ends.
type Device interface {
	Start(format beep.Format) error
	Write(ctx context.Context, samples [][2]float64) error
	// Drain waits until every written sample has been played.
	Drain(ctx context.Context) error
	// Close discards pending samples and releases the device.
	Close() error
}

// sampleBufferSize holds about 370ms of stereo audio at 44.1kHz.
const sampleBufferSize = 1 << 14

// SpeakerDevice plays through the system speaker.
type SpeakerDevice struct {
	Latency time.Duration // speaker buffer, defaults to 100ms

	samples   chan [2]float64
	drained   chan struct{}
	closeOnce sync.Once
}

func (d *SpeakerDevice) Start(format beep.Format) error {
	latency := d.Latency
	if latency <= 0 {
		latency = time.Second / 10
	}
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(latency)); err != nil {
		return errors.Wrap(err, "init speaker")
	}
	d.samples = make(chan [2]float64, sampleBufferSize)
	d.drained = make(chan struct{})
	d.closeOnce = sync.Once{}
	drained := d.drained
	speaker.Play(beep.Seq(streamSamples(d.samples), beep.Callback(func() { close(drained) })))
	return nil
}

func (d *SpeakerDevice) Write(ctx context.Context, samples [][2]float64) error {
	if d.samples == nil {
		return errors.New("speaker not started")
	}
	return sendSamples(ctx, d.samples, samples)
}

func sendSamples(ctx context.Context, dst chan<- [2]float64, samples [][2]float64) error {
	for _, s := range samples {
		select {
		case dst <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *SpeakerDevice) Drain(ctx context.Context) error {
	if d.samples == nil {
		return nil
	}
	d.closeOnce.Do(func() { close(d.samples) })
	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *SpeakerDevice) Close() error {
	if d.samples == nil {
		return nil
	}
	// the streamer must see a closed channel before the speaker loop is
	// told to exit, otherwise it blocks on the receive forever
	d.closeOnce.Do(func() { close(d.samples) })
	speaker.Clear()
	speaker.Close()
	d.samples = nil
	return nil
}

// streamSamples feeds the speaker from a channel. A closed channel ends
// the stream.
func streamSamples(source <-chan [2]float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		for n < len(samples) {
			s, open := <-source
			if !open {
				return n, n > 0
			}
			samples[n] = s
			n++
		}
		return n, true
	})
}
