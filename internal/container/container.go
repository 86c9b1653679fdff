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

// Package container reads and writes the .vide format: a small header, a
// zlib block of bit-packed frames and a zlib block of raw audio bytes.
//
// Layout, little-endian:
//
//	"VIDE" | frame_rate u32 | profile_marker f32 | frames_len u32 | frames
//	"AUDI" | audio_len u32 | audio
//
// Only ramp indices are stored. Colour is recomputed at playback time or
// not at all.
package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/errs"
)

// Extension is the conventional file suffix.
const Extension = ".vide"

var (
	videoMagic = [4]byte{'V', 'I', 'D', 'E'}
	audioMagic = [4]byte{'A', 'U', 'D', 'I'}
	byteOrder  = binary.LittleEndian
)

// Video is the decoded content of a container.
type Video struct {
	Frames    []ascii.Frame
	FrameRate uint32
	Profile   ascii.Profile
	Audio     []byte
}

// Header is the fixed-size prefix of a container.
type Header struct {
	FrameRate    uint32
	Profile      ascii.Profile
	FrameDataLen uint32
}

type options struct {
	level int
}

// Option tunes Encode.
type Option func(*options)

// WithLevel sets the zlib compression level.
func WithLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// Encode writes v to w.
func Encode(w io.Writer, v *Video, opts ...Option) error {
	o := options{level: zlib.BestSpeed}
	for _, opt := range opts {
		opt(&o)
	}
	if !v.Profile.Valid() {
		return errs.Errorf(errs.Format, "container.Encode", "unknown profile %d", v.Profile)
	}

	var raw bytes.Buffer
	var lenBuf [4]byte
	for i, f := range v.Frames {
		if len(f.Glyphs) != f.Width*f.Height {
			return errs.Errorf(errs.Format, "container.Encode", "frame %d: %d glyphs for %dx%d", i, len(f.Glyphs), f.Width, f.Height)
		}
		packed := Pack(f.Symbols(v.Profile), v.Profile.Bits())
		byteOrder.PutUint32(lenBuf[:], uint32(len(packed)))
		raw.Write(lenBuf[:])
		raw.Write(packed)
	}
	frameBlock, err := compress(raw.Bytes(), o.level)
	if err != nil {
		return errs.E(errs.Codec, "container.Encode", errors.Wrap(err, "compress frames"))
	}
	audioBlock, err := compress(v.Audio, o.level)
	if err != nil {
		return errs.E(errs.Codec, "container.Encode", errors.Wrap(err, "compress audio"))
	}

	bw := bufio.NewWriter(w)
	bw.Write(videoMagic[:])
	writeUint32(bw, v.FrameRate)
	writeUint32(bw, math.Float32bits(v.Profile.Marker()))
	writeUint32(bw, uint32(len(frameBlock)))
	bw.Write(frameBlock)
	bw.Write(audioMagic[:])
	writeUint32(bw, uint32(len(audioBlock)))
	bw.Write(audioBlock)
	// bufio keeps the first write error and reports it here
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "write container")
	}
	return nil
}

func writeUint32(w *bufio.Writer, v uint32) {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	w.Write(b[:])
}

func compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// ReadHeader reads the fixed header and validates the first magic and the
// profile marker.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [16]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, errs.E(errs.Format, "container.ReadHeader", errors.Wrap(err, "short header"))
		}
		return Header{}, errors.Wrap(err, "read header")
	}
	if !bytes.Equal(raw[0:4], videoMagic[:]) {
		return Header{}, errs.Errorf(errs.Format, "container.ReadHeader", "bad magic %q", raw[0:4])
	}
	p, err := ascii.ProfileFromMarker(math.Float32frombits(byteOrder.Uint32(raw[8:12])))
	if err != nil {
		return Header{}, err
	}
	return Header{
		FrameRate:    byteOrder.Uint32(raw[4:8]),
		Profile:      p,
		FrameDataLen: byteOrder.Uint32(raw[12:16]),
	}, nil
}

// Decode reads a whole container. Any failure returns no frames.
func Decode(r io.Reader) (*Video, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	frameBlock, err := readBlock(br, h.FrameDataLen, "frame block")
	if err != nil {
		return nil, err
	}

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || magic != audioMagic {
		return nil, errs.Errorf(errs.Format, "container.Decode", "missing %q marker after frame block", audioMagic[:])
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, errs.E(errs.Codec, "container.Decode", errors.Wrap(err, "audio length"))
	}
	audioBlock, err := readBlock(br, byteOrder.Uint32(lenBuf[:]), "audio block")
	if err != nil {
		return nil, err
	}

	frameData, err := decompress(frameBlock)
	if err != nil {
		return nil, errs.E(errs.Codec, "container.Decode", errors.Wrap(err, "inflate frames"))
	}
	frames, err := decodeFrames(frameData, h.Profile)
	if err != nil {
		return nil, err
	}
	audio, err := decompress(audioBlock)
	if err != nil {
		return nil, errs.E(errs.Codec, "container.Decode", errors.Wrap(err, "inflate audio"))
	}
	return &Video{
		Frames:    frames,
		FrameRate: h.FrameRate,
		Profile:   h.Profile,
		Audio:     audio,
	}, nil
}

func readBlock(r io.Reader, n uint32, what string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		return nil, errs.E(errs.Codec, "container.Decode", errors.Wrapf(err, "%s truncated", what))
	}
	return buf.Bytes(), nil
}

func decodeFrames(data []byte, p ascii.Profile) ([]ascii.Frame, error) {
	var frames []ascii.Frame
	for off := 0; off < len(data); {
		if len(data)-off < 4 {
			return nil, errs.Errorf(errs.Codec, "container.Decode", "frame %d: truncated length", len(frames))
		}
		n := int(byteOrder.Uint32(data[off:]))
		off += 4
		if n > len(data)-off {
			return nil, errs.Errorf(errs.Codec, "container.Decode", "frame %d: %d bytes declared, %d left", len(frames), n, len(data)-off)
		}
		f, err := ascii.FrameFromSymbols(p, Unpack(data[off:off+n], p.Bits()))
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", len(frames))
		}
		frames = append(frames, f)
		off += n
	}
	return frames, nil
}

// SaveFile writes v to path, replacing any existing file.
func SaveFile(path string, v *Video, opts ...Option) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := Encode(f, v, opts...); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// LoadFile reads the container at path.
func LoadFile(path string) (*Video, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.E(errs.NotFound, "container.LoadFile", err)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	v, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return v, nil
}
