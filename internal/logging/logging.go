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

// Package logging builds the zap logger shared by every command.
package logging

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/boriwo/termvid/internal/config"
)

// New builds a logger for cfg. Without a log file it writes to stderr; the
// returned close function flushes and releases the file.
func New(cfg config.Log) (*zap.Logger, func() error, error) {
	if cfg.File == "" {
		log, err := NewWithWriter(cfg, os.Stderr)
		return log, func() error { return nil }, err
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log file")
	}
	log, err := NewWithWriter(cfg, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return log, func() error {
		_ = log.Sync()
		return f.Close()
	}, nil
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(cfg config.Log, w io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, errors.Wrap(err, "log level")
		}
	}
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(enc)
	} else {
		encoder = zapcore.NewConsoleEncoder(enc)
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level)), nil
}

// Session tags log lines of one playback with a fresh id.
func Session(log *zap.Logger) *zap.Logger {
	return log.With(zap.String("session", uuid.NewString()))
}

// Silent drops every entry, errors included. Playback uses it when logs
// would otherwise land on the terminal being drawn to.
func Silent(log *zap.Logger) *zap.Logger {
	return log.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core {
		return zapcore.NewNopCore()
	}))
}
