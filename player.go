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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/audio"
	"github.com/boriwo/termvid/internal/config"
	"github.com/boriwo/termvid/internal/container"
	"github.com/boriwo/termvid/internal/errs"
	"github.com/boriwo/termvid/internal/logging"
	"github.com/boriwo/termvid/internal/media"
	"github.com/boriwo/termvid/internal/pipeline"
	"github.com/boriwo/termvid/internal/playback"
	"github.com/boriwo/termvid/internal/resolve"
	"github.com/boriwo/termvid/internal/store"
	"github.com/boriwo/termvid/internal/term"
)

const containerExt = container.Extension

// Player holds everything a command needs to turn a source into a played
// video.
type Player struct {
	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
	mute     bool

	in     *os.File
	out    io.Writer
	prompt *prompter

	media    media.Transcoder
	resolver *resolve.Resolver
	store    store.Store
	// openStore is swapped in tests
	openStore func(ctx context.Context, cfg config.Store) (store.Store, error)
	// play is swapped in tests
	play func(ctx context.Context, v *container.Video) (playback.Result, error)
}

func newPlayer(in *os.File, out io.Writer) *Player {
	p := &Player{
		cfg:       config.Default(),
		log:       zap.NewNop(),
		in:        in,
		out:       out,
		openStore: store.Open,
	}
	var r io.Reader = strings.NewReader("")
	if in != nil {
		r = in
	}
	p.prompt = newPrompter(r, out)
	p.play = p.playVideo
	return p
}

func (p *Player) configure(cfg *config.Config, log *zap.Logger, closeLog func() error) {
	p.cfg = cfg
	p.log = log
	p.closeLog = closeLog
	p.media = &media.ReisenTranscoder{Log: log}
	p.resolver = &resolve.Resolver{Binary: cfg.YtDlp, Log: log}
}

func (p *Player) profile() ascii.Profile {
	prof, _ := ascii.ParseProfile(p.cfg.Profile) // validated with the config
	return prof
}

func (p *Player) getStore(ctx context.Context) store.Store {
	if p.store != nil {
		return p.store
	}
	s, err := p.openStore(ctx, p.cfg.Store)
	if err != nil {
		p.log.Warn("store unavailable, converted videos will not be cached", zap.Error(err))
		s = store.Discard{}
	}
	p.store = s
	return s
}

// source is a local media file ready for the transcoder.
type source struct {
	path    string
	title   string
	origin  string
	cleanup func()
}

func (s *source) close() {
	if s != nil && s.cleanup != nil {
		s.cleanup()
	}
}

func isRemote(locator string) bool {
	l := strings.ToLower(strings.TrimSpace(locator))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "www.")
}

// openSource resolves locator to a local file. Remote videos are downloaded
// into a temporary file removed by close.
func (p *Player) openSource(ctx context.Context, locator string) (*source, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, errs.Errorf(errs.NotFound, "source", "no source given")
	}
	if !isRemote(locator) {
		if _, err := os.Stat(locator); err != nil {
			if os.IsNotExist(err) {
				return nil, errs.Errorf(errs.NotFound, "source", "the path %q doesn't exist", locator)
			}
			return nil, errors.Wrapf(err, "stat %s", locator)
		}
		return &source{path: locator, title: filepath.Base(locator), origin: locator}, nil
	}

	fmt.Fprintln(p.out, mutedStyle.Render("Downloading video..."))
	d, err := p.resolver.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", "termvid-*."+d.Ext)
	if err != nil {
		return nil, errors.Wrap(err, "create temp file")
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := f.Write(d.Data); err != nil {
		f.Close()
		cleanup()
		return nil, errors.Wrap(err, "write download")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, errors.Wrap(err, "write download")
	}
	fmt.Fprintln(p.out, successStyle.Render(fmt.Sprintf("Video %s downloaded successfully.", d.Title)))
	return &source{path: f.Name(), title: d.Title, origin: locator, cleanup: cleanup}, nil
}

// convert turns src into a video sized for a w x h character grid. A
// previously stored conversion of the same bytes is reused.
func (p *Player) convert(ctx context.Context, src *source, prof ascii.Profile, cols, rows int) (*container.Video, error) {
	info, err := p.media.Probe(src.path)
	if err != nil {
		return nil, err
	}
	w, h := media.FitToTerminal(cols, rows, info.Width, info.Height)
	if w == 0 {
		return nil, errs.Errorf(errs.Format, "convert", "terminal %dx%d is too small", cols, rows)
	}
	fmt.Fprintf(p.out, "Video resolution: %d X %d, drawing at %d X %d\n", info.Width, info.Height, w, h)

	st := p.getStore(ctx)
	key := ""
	if digest, err := store.DigestFile(src.path); err != nil {
		p.log.Warn("cannot hash source, skipping cache", zap.Error(err))
	} else {
		key = store.CacheKey(digest, prof, w, h)
		if v, ok := p.cached(ctx, st, key); ok {
			fmt.Fprintln(p.out, successStyle.Render("Using stored conversion "+key))
			return v, nil
		}
	}

	start := time.Now()
	fmt.Fprint(p.out, "Extracting frames and audio...")
	ext, err := p.media.Extract(ctx, src.path, w, h)
	if err != nil {
		fmt.Fprintln(p.out)
		return nil, err
	}
	rate, err := ext.Info.Rate()
	if err != nil {
		fmt.Fprintln(p.out)
		return nil, errs.E(errs.Format, "convert", err)
	}
	fmt.Fprintf(p.out, " Extracted %d frames from video\n", len(ext.Frames))
	fmt.Fprintf(p.out, "Approximate characters per frame: %d\n", w*h)

	bar := newProgressBar(p.out, "Converting frames")
	frames, err := pipeline.Run(ctx, ext.Frames, pipeline.Options{
		Workers: p.cfg.Workers,
		Profile: prof,
		OnBatch: bar.update,
	})
	bar.finish()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.out, "Frame conversion completed in %s.\n", time.Since(start).Round(time.Millisecond))
	v := &container.Video{Frames: frames, FrameRate: rate, Profile: prof, Audio: ext.Audio}

	if key != "" {
		p.remember(ctx, st, key, v, src, w, h)
	}
	return v, nil
}

func (p *Player) cached(ctx context.Context, st store.Store, key string) (*container.Video, bool) {
	data, err := st.Get(ctx, key)
	if err != nil {
		if !errs.Is(err, errs.NotFound) {
			p.log.Warn("store lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	v, err := container.Decode(bytes.NewReader(data))
	if err != nil {
		p.log.Warn("stored conversion unreadable, converting again", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, true
}

func (p *Player) remember(ctx context.Context, st store.Store, key string, v *container.Video, src *source, w, h int) {
	var buf bytes.Buffer
	if err := container.Encode(&buf, v, container.WithLevel(p.cfg.CompressionLevel)); err != nil {
		p.log.Warn("encode for store", zap.Error(err))
		return
	}
	e := store.Entry{
		Title:     src.title,
		Source:    src.origin,
		Profile:   v.Profile.String(),
		FrameRate: v.FrameRate,
		Frames:    len(v.Frames),
		Width:     w,
		Height:    h,
		Created:   time.Now(),
	}
	if err := st.Put(ctx, key, buf.Bytes(), e); err != nil {
		p.log.Warn("store conversion", zap.String("key", key), zap.Error(err))
		return
	}
	p.log.Debug("stored conversion", zap.String("key", key), zap.Int("bytes", buf.Len()))
}

// playVideo takes over the terminal until the video ends or q is pressed.
func (p *Player) playVideo(ctx context.Context, v *container.Video) (playback.Result, error) {
	log := p.playbackLogger()
	var actor playback.AudioActor = playback.Silence{}
	if !p.mute && len(v.Audio) > 0 {
		actor = &audio.Player{Device: &audio.SpeakerDevice{}, WAV: v.Audio, Log: log}
	}
	sched := &playback.Scheduler{
		Screen:   &term.Screen{Out: p.out, In: p.in},
		Audio:    actor,
		Listener: playback.KeyListener{In: p.in},
		Log:      log,
	}
	res, err := sched.Run(ctx, playback.NewSession(v.Frames, v.FrameRate, v.Profile))
	log.Info("playback ended",
		zap.Stringer("state", res.State),
		zap.Int("rendered", res.Rendered),
		zap.Int("late", res.Late),
		zap.Duration("elapsed", res.Elapsed))
	return res, err
}

// playbackLogger tags entries with a session id. Without a log file the
// entries would go to stderr over the frames, so they are dropped.
func (p *Player) playbackLogger() *zap.Logger {
	log := logging.Session(p.log)
	if p.cfg.Log.File == "" {
		return logging.Silent(log)
	}
	return log
}

func (p *Player) save(path string, v *container.Video) error {
	if filepath.Ext(path) == "" {
		path += containerExt
	}
	if err := container.SaveFile(path, v, container.WithLevel(p.cfg.CompressionLevel)); err != nil {
		return err
	}
	fmt.Fprintln(p.out, successStyle.Render("Saved "+path))
	return nil
}
