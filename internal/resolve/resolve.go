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

// Package resolve turns a remote video locator into media bytes using
// yt-dlp for metadata and a plain HTTP download for the stream.
package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/boriwo/termvid/internal/errs"
)

// Download is a resolved remote video.
type Download struct {
	Title string
	Ext   string
	URL   string
	Data  []byte
}

// Runner runs an external command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Resolver fetches remote videos.
type Resolver struct {
	Binary string // defaults to yt-dlp
	Run    Runner
	HTTP   *http.Client
	Log    *zap.Logger
}

// invalidMarkers are yt-dlp messages meaning the locator itself is wrong,
// as opposed to a network or extractor failure.
var invalidMarkers = []string{"is not a valid URL", "Unsupported URL"}

// Resolve looks up locator and downloads the best single-file format. An
// invalid locator is a recoverable Resolver error.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*Download, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, errs.Errorf(errs.Resolver, "resolve", "empty locator")
	}
	bin := r.Binary
	if bin == "" {
		bin = "yt-dlp"
	}
	run := r.Run
	if run == nil {
		run = ExecRunner
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	stdout, stderr, err := run(ctx, bin, "-J", "--no-playlist", "-f", "best", locator)
	if err != nil {
		msg := string(stderr)
		for _, m := range invalidMarkers {
			if strings.Contains(msg, m) {
				return nil, errs.E(errs.Resolver, "resolve", errors.Errorf("%q: %s", locator, strings.TrimSpace(msg)))
			}
		}
		return nil, errors.Wrapf(err, "%s %s: %s", bin, locator, strings.TrimSpace(msg))
	}
	d, err := ParseInfo(stdout)
	if err != nil {
		return nil, err
	}
	log.Info("resolved video", zap.String("title", d.Title), zap.String("ext", d.Ext))

	if d.Data, err = r.fetch(ctx, d.URL); err != nil {
		return nil, err
	}
	log.Debug("downloaded video", zap.Int("bytes", len(d.Data)))
	return d, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build download request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read download")
	}
	return data, nil
}

type ytInfo struct {
	Title string `json:"title"`
	Ext   string `json:"ext"`
	URL   string `json:"url"`
}

// ParseInfo extracts the fields Resolve needs from yt-dlp's JSON dump.
// Exported for testing without a real yt-dlp binary.
func ParseInfo(data []byte) (*Download, error) {
	var raw ytInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse yt-dlp JSON")
	}
	if raw.URL == "" {
		return nil, errs.Errorf(errs.Resolver, "resolve", "no direct media url for %q", raw.Title)
	}
	if raw.Ext == "" {
		raw.Ext = "mp4"
	}
	return &Download{Title: raw.Title, Ext: raw.Ext, URL: raw.URL}, nil
}
