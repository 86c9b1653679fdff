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

// Package audio plays a video's WAV soundtrack alongside the frames.
package audio

import (
	"bytes"
	"context"

	"github.com/faiface/beep/wav"
	"go.uber.org/zap"

	"github.com/boriwo/termvid/internal/errs"
	"github.com/boriwo/termvid/internal/playback"
)

// DefaultChunkFrames is the number of stereo frames handed to the device
// per write.
const DefaultChunkFrames = 1024

// Player streams a WAV blob to a Device. It implements playback.AudioActor.
type Player struct {
	Device      Device
	WAV         []byte
	ChunkFrames int
	Log         *zap.Logger
}

// Run plays until the blob is exhausted or the stop flag trips. The playing
// flag is raised after the first chunk reaches the device and lowered on
// every exit.
func (p *Player) Run(ctx context.Context, sig *playback.Signals) error {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	if len(p.WAV) == 0 {
		sig.MarkPlaying()
		sig.MarkIdle()
		return nil
	}
	defer sig.MarkIdle()

	stream, format, err := wav.Decode(bytes.NewReader(p.WAV))
	if err != nil {
		return errs.E(errs.Format, "audio.Decode", err)
	}
	defer stream.Close()

	if err := p.Device.Start(format); err != nil {
		return errs.E(errs.Device, "audio.Start", err)
	}
	chunk := p.ChunkFrames
	if chunk <= 0 {
		chunk = DefaultChunkFrames
	}
	buf := make([][2]float64, chunk)
	written := 0
	for !sig.Stopped() && ctx.Err() == nil {
		n, ok := stream.Stream(buf)
		if n > 0 {
			if err := p.Device.Write(ctx, buf[:n]); err != nil {
				if ctx.Err() != nil {
					break
				}
				p.Device.Close()
				return errs.E(errs.Device, "audio.Write", err)
			}
			if written == 0 {
				sig.MarkPlaying()
			}
			written += n
		}
		if !ok {
			break
		}
	}
	// a blob with a header and no samples still counts as started
	sig.MarkPlaying()
	if err := stream.Err(); err != nil {
		p.Device.Close()
		return errs.E(errs.Format, "audio.Decode", err)
	}

	if sig.Stopped() || ctx.Err() != nil {
		log.Debug("audio stopped", zap.Int("samples", written))
		if err := p.Device.Close(); err != nil {
			return errs.E(errs.Device, "audio.Close", err)
		}
		return nil
	}
	if err := p.Device.Drain(ctx); err != nil {
		p.Device.Close()
		if ctx.Err() != nil {
			return nil
		}
		return errs.E(errs.Device, "audio.Drain", err)
	}
	log.Debug("audio finished", zap.Int("samples", written), zap.Int("rate", int(format.SampleRate)))
	if err := p.Device.Close(); err != nil {
		return errs.E(errs.Device, "audio.Close", err)
	}
	return nil
}
