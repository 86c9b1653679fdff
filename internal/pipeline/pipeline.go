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

// Package pipeline encodes a whole video's frames on a fixed worker pool.
//
// Frames are cut into contiguous batches. Each worker encodes a batch in
// order and stores it in the batch's own slot; the gather step walks the
// slots in submission order, so the result never depends on which worker
// finished first.
package pipeline

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/errs"
)

// EncodeFunc converts one frame.
type EncodeFunc func(ascii.RawFrame, ascii.Profile) (ascii.Frame, error)

// Options configures Run.
type Options struct {
	Workers int
	Profile ascii.Profile
	// OnBatch is called once per finished batch from a dedicated goroutine.
	OnBatch func(done, total int)
	// Encode defaults to ascii.EncodeChecked.
	Encode EncodeFunc
}

// Batches partitions n frames for the given worker count into contiguous
// [start, end) ranges of about n/(workers*2) frames.
func Batches(n, workers int) [][2]int {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := int(math.Round(float64(n) / float64(workers*2)))
	if size < 1 {
		size = 1
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

type job struct {
	index      int
	start, end int
}

// Run encodes frames and returns them in input order. The first failing
// batch aborts the run and no frames are returned.
func Run(ctx context.Context, frames []ascii.RawFrame, opts Options) ([]ascii.Frame, error) {
	if err := validate(frames); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	encode := opts.Encode
	if encode == nil {
		encode = ascii.EncodeChecked
	}
	batches := Batches(len(frames), workers)
	if len(batches) == 0 {
		return []ascii.Frame{}, nil
	}
	if workers > len(batches) {
		workers = len(batches)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]ascii.Frame, len(batches))
	jobs := make(chan job)
	ticks := make(chan struct{}, len(batches))

	var (
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		done := 0
		for range ticks {
			done++
			if opts.OnBatch != nil {
				opts.OnBatch(done, len(batches))
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out := make([]ascii.Frame, 0, j.end-j.start)
				for i := j.start; i < j.end; i++ {
					f, err := encode(frames[i], opts.Profile)
					if err != nil {
						fail(errors.Wrapf(err, "encode frame %d", i))
						break
					}
					out = append(out, f)
				}
				if len(out) < j.end-j.start {
					continue
				}
				results[j.index] = out
				ticks <- struct{}{}
			}
		}()
	}

feed:
	for i, b := range batches {
		select {
		case jobs <- job{index: i, start: b[0], end: b[1]}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(ticks)
	<-progressDone

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "pipeline cancelled")
	}

	out := make([]ascii.Frame, 0, len(frames))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func validate(frames []ascii.RawFrame) error {
	if len(frames) == 0 {
		return nil
	}
	first := frames[0]
	for i, f := range frames {
		if !f.SameShape(first) {
			return errs.Errorf(errs.Format, "pipeline.Run", "frame %d is %dx%d %s, session is %dx%d %s",
				i, f.Width, f.Height, f.Format, first.Width, first.Height, first.Format)
		}
	}
	return nil
}
