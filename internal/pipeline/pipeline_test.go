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

package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/errs"
)

func makeFrames(n, w, h int) []ascii.RawFrame {
	frames := make([]ascii.RawFrame, n)
	for i := range frames {
		pix := make([]byte, w*h*3)
		for j := range pix {
			pix[j] = byte(i*7 + j*13)
		}
		frames[i] = ascii.RawFrame{Width: w, Height: h, Format: ascii.RGB24, Pix: pix}
	}
	return frames
}

func sequential(frames []ascii.RawFrame, p ascii.Profile) []ascii.Frame {
	out := make([]ascii.Frame, len(frames))
	for i, f := range frames {
		out[i] = ascii.Encode(f, p)
	}
	return out
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, workers int
		want       int // batch count
	}{
		{0, 4, 0},
		{1, 4, 1},
		{7, 1, 2},
		{100, 4, 8},
		{3, 16, 3},
	}
	for _, tt := range tests {
		got := Batches(tt.n, tt.workers)
		if len(got) != tt.want {
			t.Errorf("Batches(%d, %d) = %d batches, want %d", tt.n, tt.workers, len(got), tt.want)
		}
		next := 0
		for _, b := range got {
			if b[0] != next || b[1] <= b[0] {
				t.Fatalf("Batches(%d, %d): non-contiguous %v", tt.n, tt.workers, got)
			}
			next = b[1]
		}
		if next != tt.n {
			t.Errorf("Batches(%d, %d) covers %d frames", tt.n, tt.workers, next)
		}
	}
}

func TestRunMatchesSequential(t *testing.T) {
	frames := makeFrames(100, 6, 4)
	want := sequential(frames, ascii.High)

	var mu sync.Mutex
	var ticks []int
	got, err := Run(context.Background(), frames, Options{
		Workers: 4,
		Profile: ascii.High,
		OnBatch: func(done, total int) {
			mu.Lock()
			ticks = append(ticks, done)
			mu.Unlock()
			if total != 8 {
				t.Errorf("total = %d, want 8", total)
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d frames", len(got))
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatal("pipeline output differs from sequential encode")
	}
	if len(ticks) != 8 || ticks[len(ticks)-1] != 8 {
		t.Errorf("progress ticks = %v", ticks)
	}
}

// Later frames finish first; output order must still follow the input.
func TestRunOrderIndependentOfCompletion(t *testing.T) {
	frames := makeFrames(40, 3, 2)
	want := sequential(frames, ascii.Low)
	index := make(map[*byte]int, len(frames))
	for i, f := range frames {
		index[&f.Pix[0]] = i
	}
	slow := func(raw ascii.RawFrame, p ascii.Profile) (ascii.Frame, error) {
		i := index[&raw.Pix[0]]
		time.Sleep(time.Duration(len(frames)-i) * 200 * time.Microsecond)
		return ascii.EncodeChecked(raw, p)
	}
	for _, workers := range []int{1, 2, 3, 8, 64} {
		got, err := Run(context.Background(), frames, Options{Workers: workers, Profile: ascii.Low, Encode: slow})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("workers=%d: order not preserved", workers)
		}
	}
}

func TestRunEmpty(t *testing.T) {
	got, err := Run(context.Background(), nil, Options{Workers: 4})
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestRunAbortsOnBatchFailure(t *testing.T) {
	frames := makeFrames(50, 2, 2)
	boom := errors.New("boom")
	calls := 0
	var mu sync.Mutex
	failing := func(raw ascii.RawFrame, p ascii.Profile) (ascii.Frame, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 10 {
			return ascii.Frame{}, boom
		}
		return ascii.Encode(raw, p), nil
	}
	got, err := Run(context.Background(), frames, Options{Workers: 3, Encode: failing})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if got != nil {
		t.Fatal("partial results returned")
	}
}

func TestRunRejectsMixedShapes(t *testing.T) {
	frames := append(makeFrames(3, 4, 4), makeFrames(1, 5, 4)...)
	if _, err := Run(context.Background(), frames, Options{Workers: 2}); !errs.Is(err, errs.Format) {
		t.Fatalf("want format error, got %v", err)
	}
}

func TestRunRejectsBadBuffer(t *testing.T) {
	frames := makeFrames(4, 4, 4)
	frames[2].Pix = frames[2].Pix[:5]
	if _, err := Run(context.Background(), frames, Options{Workers: 2}); !errs.Is(err, errs.Format) {
		t.Fatalf("want format error, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, makeFrames(20, 2, 2), Options{Workers: 2}); err == nil {
		t.Fatal("expected cancellation error")
	}
}
