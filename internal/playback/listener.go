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
	"bytes"
	"context"
	"io"

	"github.com/muesli/cancelreader"
	"github.com/pkg/errors"
)

// ctrlC arrives as a plain byte while the terminal is in raw mode.
const ctrlC = 0x03

// KeyListener stops playback when one of Keys is read from In.
type KeyListener struct {
	In   io.Reader
	Keys []byte // defaults to q, Q and ctrl-c
}

// Listen blocks on In. The pending read is cancelled when ctx is done so
// the next session can read the same input.
func (k KeyListener) Listen(ctx context.Context, sig *Signals) error {
	keys := k.Keys
	if len(keys) == 0 {
		keys = []byte{'q', 'Q', ctrlC}
	}
	cr, err := cancelreader.NewReader(k.In)
	if err != nil {
		return errors.Wrap(err, "cancel reader")
	}
	defer cr.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cr.Cancel()
		case <-done:
		}
	}()

	buf := make([]byte, 16)
	for {
		n, err := cr.Read(buf)
		if n > 0 && bytes.ContainsAny(buf[:n], string(keys)) {
			sig.Stop()
			return nil
		}
		if err != nil {
			if errors.Is(err, cancelreader.ErrCanceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "read input")
		}
	}
}
