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

// Package config loads termvid.yaml. Every value is optional; command-line
// flags override the file.
package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/errs"
)

type Config struct {
	Profile          string `yaml:"profile"`
	Workers          int    `yaml:"workers"` // 0 uses every CPU
	CompressionLevel int    `yaml:"compression_level"`
	ColorThreshold   int    `yaml:"color_threshold"`
	YtDlp            string `yaml:"yt_dlp"`
	Log              Log    `yaml:"log"`
	Store            Store  `yaml:"store"`
}

type Log struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"` // console or json
}

// Store selects where converted videos are cached.
type Store struct {
	Kind  string `yaml:"kind"` // dir, s3, redis or none
	Dir   string `yaml:"dir"`
	S3    S3     `yaml:"s3"`
	Redis Redis  `yaml:"redis"`
}

type S3 struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type Redis struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	dir := filepath.Join(os.TempDir(), "termvid")
	if cache, err := os.UserCacheDir(); err == nil {
		dir = filepath.Join(cache, "termvid")
	}
	return &Config{
		Profile:          "low",
		CompressionLevel: 1,
		ColorThreshold:   24,
		YtDlp:            "yt-dlp",
		Log:              Log{Level: "info", Format: "console"},
		Store:            Store{Kind: "dir", Dir: dir, Redis: Redis{Prefix: "termvid:"}},
	}
}

// Load reads path over the defaults, expanding ${VAR} references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.E(errs.NotFound, "config.Load", err)
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
		return nil, errs.E(errs.Format, "config.Load", errors.Wrapf(err, "invalid YAML in %s", path))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errs.Errorf(errs.Format, "config", format, args...)
	}
	if _, err := ascii.ParseProfile(c.Profile); err != nil {
		return err
	}
	if c.Workers < 0 {
		return invalid("workers must be >= 0, got %d", c.Workers)
	}
	if c.CompressionLevel < -2 || c.CompressionLevel > 9 {
		return invalid("compression_level must be within -2..9, got %d", c.CompressionLevel)
	}
	if c.ColorThreshold < 0 || c.ColorThreshold > 765 {
		return invalid("color_threshold must be within 0..765, got %d", c.ColorThreshold)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log level %q", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return invalid("log format must be console or json, got %q", c.Log.Format)
	}
	switch c.Store.Kind {
	case "none":
	case "dir":
		if c.Store.Dir == "" {
			return invalid("store.dir is required for the dir store")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return invalid("store.s3.bucket is required for the s3 store")
		}
	case "redis":
		if c.Store.Redis.URL == "" {
			return invalid("store.redis.url is required for the redis store")
		}
	default:
		return invalid("unknown store kind %q", c.Store.Kind)
	}
	return nil
}

// envVar matches ${VAR} and ${VAR:-default}.
var envVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment variables. Unset variables without a
// default expand to the empty string.
func ExpandEnv(input string) string {
	return envVar.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVar.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok && v != "" {
			return v
		}
		return groups[2]
	})
}
