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

// termvid plays videos as coloured text in the terminal, in sync with their
// soundtrack, and stores converted videos for instant replay.
//
// Exit codes:
//   - 0: success
//   - 1: any other failure
//   - 2: malformed input (bad container, corrupt data, invalid settings)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/config"
	"github.com/boriwo/termvid/internal/errs"
	"github.com/boriwo/termvid/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := newApp(os.Stdin, os.Stdout).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

func newApp(in *os.File, out *os.File) *cli.App {
	p := newPlayer(in, out)
	return &cli.App{
		Name:           "termvid",
		Usage:          "play videos as text in the terminal",
		Version:        version,
		Flags:          globalFlags(),
		Before:         p.setup,
		After:          p.teardown,
		Action:         p.playAction,
		ExitErrHandler: deferExit,
		Commands: []*cli.Command{
			{
				Name:      "play",
				Usage:     "convert and play a local file or a URL",
				ArgsUsage: "[source]",
				Action:    p.playAction,
			},
			{
				Name:      "replay",
				Usage:     "play a saved " + containerExt + " file",
				ArgsUsage: "<file>",
				Action:    p.replayAction,
			},
			{
				Name:      "convert",
				Usage:     "convert a source to a " + containerExt + " file without playing it",
				ArgsUsage: "<source>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file", Required: true},
					&cli.IntFlag{Name: "cols", Usage: "terminal columns to fit (default: current terminal)"},
					&cli.IntFlag{Name: "rows", Usage: "terminal rows to fit (default: current terminal)"},
				},
				Action: p.convertAction,
			},
			{
				Name:      "info",
				Usage:     "describe a " + containerExt + " file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "decode", Usage: "decode every frame and report the frame count"},
				},
				Action: p.infoAction,
			},
			{
				Name:  "ramp",
				Usage: "measure a font's glyphs and print them as a brightness ramp",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "font", Usage: "TTF file (default: Go Mono)"},
					&cli.StringFlag{Name: "alphabet", Usage: "characters to measure (default: printable ASCII)"},
					&cli.BoolFlag{Name: "light", Usage: "dark text on a light background"},
					&cli.BoolFlag{Name: "table", Usage: "print the measured coverage per glyph"},
				},
				Action: p.rampAction,
			},
			{
				Name:   "list",
				Usage:  "list converted videos in the store",
				Action: p.listAction,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"TERMVID_CONFIG"}},
		&cli.StringFlag{Name: "profile", Usage: "brightness profile: low or high"},
		&cli.IntFlag{Name: "workers", Usage: "encoding workers (0 = all CPUs)"},
		&cli.IntFlag{Name: "level", Usage: "container compression level (-2..9)"},
		&cli.IntFlag{Name: "color-threshold", Usage: "colour distance that starts a new colour run"},
		&cli.StringFlag{Name: "store", Usage: "converted video store: dir, s3, redis or none"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "log-file", Usage: "write logs to this file instead of stderr"},
		&cli.StringFlag{Name: "log-format", Usage: "console or json"},
		&cli.BoolFlag{Name: "mute", Usage: "play without sound"},
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet("profile") {
		cfg.Profile = c.String("profile")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("level") {
		cfg.CompressionLevel = c.Int("level")
	}
	if c.IsSet("color-threshold") {
		cfg.ColorThreshold = c.Int("color-threshold")
	}
	if c.IsSet("store") {
		cfg.Store.Kind = c.String("store")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Player) setup(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	ascii.ColorThreshold = cfg.ColorThreshold
	p.configure(cfg, log, closeLog)
	p.mute = c.Bool("mute")
	return nil
}

func (p *Player) teardown(*cli.Context) error {
	if p.closeLog == nil {
		return nil
	}
	return p.closeLog()
}

// exitCode maps malformed input to 2 and everything else to 1.
func exitCode(err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}
	switch errs.KindOf(err) {
	case errs.Format, errs.Codec:
		return 2
	}
	return 1
}

// deferExit keeps urfave/cli from exiting inside RunContext, which would
// skip the After hook that closes the log file.
func deferExit(*cli.Context, error) {}

// report prints err and returns the process exit code.
func report(w io.Writer, err error) int {
	code := exitCode(err)
	msg := err.Error()
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg == "" || msg == fmt.Sprintf("exit status %d", code) {
			return code
		}
	} else {
		msg = "Error: " + msg
	}
	fmt.Fprintln(w, errorStyle.Render(msg))
	return code
}
