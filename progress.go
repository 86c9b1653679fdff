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

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
)

// progressBar redraws a single line on every update.
type progressBar struct {
	mu    sync.Mutex
	out   io.Writer
	label string
	bar   progress.Model
	drawn bool
}

func newProgressBar(out io.Writer, label string) *progressBar {
	return &progressBar{
		out:   out,
		label: label,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (b *progressBar) update(done, total int) {
	if total <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pct := float64(done) / float64(total)
	fmt.Fprintf(b.out, "\r%s %s %d/%d", b.label, b.bar.ViewAs(pct), done, total)
	b.drawn = true
}

// finish ends the progress line. Nothing is printed if no update came.
func (b *progressBar) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drawn {
		fmt.Fprintln(b.out)
		b.drawn = false
	}
}
