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

// Package media decodes video files into scaled raw frames and a WAV
// soundtrack.
package media

import (
	"context"
	"encoding/binary"
	"image"
	"math"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/zergon321/reisen"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/audio"
	"github.com/boriwo/termvid/internal/errs"
)

// Extraction is everything the encoder and the player need from a file.
type Extraction struct {
	Info   Info
	Frames []ascii.RawFrame
	Audio  []byte // WAV, empty when the file has no sound
}

// Transcoder probes and decodes media files.
type Transcoder interface {
	Probe(path string) (Info, error)
	Extract(ctx context.Context, path string, w, h int) (*Extraction, error)
}

// ReisenTranscoder decodes with libav through reisen.
type ReisenTranscoder struct {
	Log *zap.Logger
	// OnFrame, when set, is called after each decoded video frame.
	OnFrame func(n int)
}

func (t *ReisenTranscoder) log() *zap.Logger {
	if t.Log == nil {
		return zap.NewNop()
	}
	return t.Log
}

func openMedia(path string) (*reisen.Media, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.E(errs.NotFound, "media.Open", err)
		}
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	m, err := reisen.NewMedia(path)
	if err != nil {
		return nil, errs.E(errs.Format, "media.Open", errors.Wrapf(err, "open %s", path))
	}
	return m, nil
}

func (t *ReisenTranscoder) Probe(path string) (Info, error) {
	m, err := openMedia(path)
	if err != nil {
		return Info{}, err
	}
	defer m.Close()
	return probe(m)
}

func probe(m *reisen.Media) (Info, error) {
	var info Info
	videos := m.VideoStreams()
	if len(videos) == 0 {
		return info, errs.Errorf(errs.Format, "media.Probe", "no video stream")
	}
	v := videos[0]
	num, den := v.FrameRate()
	info.Width, info.Height = v.Width(), v.Height()
	info.FrameRate = formatRational(num, den)
	if as := m.AudioStreams(); len(as) > 0 {
		info.SampleRate = as[0].SampleRate()
	}
	return info, nil
}

func formatRational(num, den int) string {
	return strconv.Itoa(num) + "/" + strconv.Itoa(den)
}

// Extract decodes every video frame scaled to w x h and the first audio
// stream. Frames that fail to decode are skipped, as libav may emit
// undecodable packets around keyframes.
func (t *ReisenTranscoder) Extract(ctx context.Context, path string, w, h int) (*Extraction, error) {
	if w < 1 || h < 1 {
		return nil, errs.Errorf(errs.Format, "media.Extract", "target size %dx%d", w, h)
	}
	m, err := openMedia(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	info, err := probe(m)
	if err != nil {
		return nil, err
	}

	if err := m.OpenDecode(); err != nil {
		return nil, errs.E(errs.Codec, "media.Extract", errors.Wrap(err, "open decode"))
	}
	defer m.CloseDecode()
	video := m.VideoStreams()[0]
	if err := video.Open(); err != nil {
		return nil, errs.E(errs.Codec, "media.Extract", errors.Wrap(err, "open video stream"))
	}
	defer video.Close()
	var audioStream *reisen.AudioStream
	if as := m.AudioStreams(); len(as) > 0 {
		audioStream = as[0]
		if err := audioStream.Open(); err != nil {
			t.log().Warn("audio stream unusable, continuing without sound", zap.Error(err))
			audioStream = nil
		} else {
			defer audioStream.Close()
		}
	}

	out := &Extraction{Info: info}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var samples [][2]float64
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		packet, gotPacket, err := m.ReadPacket()
		if err != nil {
			return nil, errs.E(errs.Codec, "media.Extract", errors.Wrap(err, "read packet"))
		}
		if !gotPacket {
			break
		}
		switch packet.Type() {
		case reisen.StreamVideo:
			if packet.StreamIndex() != video.Index() {
				continue
			}
			frame, gotFrame, err := video.ReadVideoFrame()
			if err != nil {
				skipped++
				continue
			}
			if !gotFrame || frame == nil {
				continue
			}
			src := frame.Image()
			xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
			out.Frames = append(out.Frames, toRGB24(dst))
			if t.OnFrame != nil {
				t.OnFrame(len(out.Frames))
			}
		case reisen.StreamAudio:
			if audioStream == nil || packet.StreamIndex() != audioStream.Index() {
				continue
			}
			frame, gotFrame, err := audioStream.ReadAudioFrame()
			if err != nil || !gotFrame || frame == nil {
				continue
			}
			samples = appendSamples(samples, frame.Data())
		}
	}
	if skipped > 0 {
		t.log().Debug("skipped undecodable video frames", zap.Int("count", skipped))
	}

	if audioStream != nil && len(samples) > 0 {
		blob, err := audio.EncodeWAV(samples, audioStream.SampleRate())
		if err != nil {
			return nil, errs.E(errs.Codec, "media.Extract", err)
		}
		out.Audio = blob
	}
	t.log().Info("extracted media",
		zap.String("path", path),
		zap.Int("frames", len(out.Frames)),
		zap.Int("samples", len(samples)),
		zap.String("rate", info.FrameRate))
	return out, nil
}

// appendSamples decodes interleaved little-endian float64 stereo, the
// layout reisen resamples audio into.
func appendSamples(dst [][2]float64, data []byte) [][2]float64 {
	for len(data) >= 16 {
		l := math.Float64frombits(binary.LittleEndian.Uint64(data))
		r := math.Float64frombits(binary.LittleEndian.Uint64(data[8:]))
		dst = append(dst, [2]float64{l, r})
		data = data[16:]
	}
	return dst
}

func toRGB24(img *image.RGBA) ascii.RawFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			pix = append(pix, row[x], row[x+1], row[x+2])
		}
	}
	return ascii.RawFrame{Width: w, Height: h, Format: ascii.RGB24, Pix: pix}
}
