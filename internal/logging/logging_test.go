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

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boriwo/termvid/internal/config"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	Session(log).Debug("frame drawn")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if entry["message"] != "frame drawn" || entry["level"] != "debug" {
		t.Errorf("entry = %v", entry)
	}
	if id, _ := entry["session"].(string); len(id) != 36 {
		t.Errorf("session id = %v", entry["session"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.Log{Level: "warn"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSilent(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithWriter(config.Log{Level: "debug"}, &buf)
	q := Silent(Session(log))
	q.Warn("suppressed")
	q.Error("also suppressed")
	if buf.Len() != 0 {
		t.Errorf("output = %q", buf.String())
	}
	log.Info("parent still logs")
	if !strings.Contains(buf.String(), "parent still logs") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestBadLevel(t *testing.T) {
	if _, err := NewWithWriter(config.Log{Level: "chatty"}, &bytes.Buffer{}); err == nil {
		t.Fatal("bad level accepted")
	}
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termvid.log")
	log, closeFn, err := New(config.Log{Level: "info", File: path})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("to file")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}
