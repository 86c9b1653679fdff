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
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"
)

// EncodeWAV writes stereo samples as a 16-bit PCM WAV blob.
func EncodeWAV(samples [][2]float64, rate int) ([]byte, error) {
	if rate <= 0 {
		return nil, errors.Errorf("invalid sample rate %d", rate)
	}
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	var buf writeSeeker
	if err := wav.Encode(&buf, sliceStreamer(samples), format); err != nil {
		return nil, errors.Wrap(err, "encode wav")
	}
	return buf.data, nil
}

func sliceStreamer(src [][2]float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if len(src) == 0 {
			return 0, false
		}
		n := copy(samples, src)
		src = src[n:]
		return n, true
	})
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch the header sizes.
type writeSeeker struct {
	data []byte
	pos  int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.data) {
		if end > cap(w.data) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.data)
			w.data = grown
		} else {
			w.data = w.data[:end]
		}
	}
	n := copy(w.data[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.data))
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(pos)
	return pos, nil
}
