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

// Package store caches converted videos so a source is only encoded once
// per profile and size.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/boriwo/termvid/internal/ascii"
	"github.com/boriwo/termvid/internal/config"
	"github.com/boriwo/termvid/internal/errs"
)

// Entry describes a stored container. It is kept next to the data so List
// never has to download a whole video.
type Entry struct {
	Key       string    `msgpack:"key"`
	Title     string    `msgpack:"title"`
	Source    string    `msgpack:"source"`
	Profile   string    `msgpack:"profile"`
	FrameRate uint32    `msgpack:"frame_rate"`
	Frames    int       `msgpack:"frames"`
	Width     int       `msgpack:"width"`
	Height    int       `msgpack:"height"`
	Size      int64     `msgpack:"size"`
	Created   time.Time `msgpack:"created"`
}

// Store persists containers by key. Get on an unknown key returns a
// NotFound error.
type Store interface {
	Put(ctx context.Context, key string, data []byte, e Entry) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]Entry, error)
}

// Open builds the store selected by cfg.Kind.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	switch cfg.Kind {
	case "", "none":
		return Discard{}, nil
	case "dir":
		return NewDirStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "redis":
		return NewRedisStore(cfg.Redis)
	}
	return nil, errs.Errorf(errs.Format, "store.Open", "unknown store kind %q", cfg.Kind)
}

// CacheKey names the container produced from a source with the given
// digest at one profile and size.
func CacheKey(digest uint64, p ascii.Profile, w, h int) string {
	return fmt.Sprintf("%016x-%s-%dx%d", digest, p, w, h)
}

// Digest hashes source bytes.
func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// DigestFile hashes a file without loading it whole.
func DigestFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errs.E(errs.NotFound, "store.DigestFile", err)
		}
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, errors.Wrapf(err, "hash %s", path)
	}
	return h.Sum64(), nil
}

func encodeEntry(e Entry) ([]byte, error) {
	b, err := msgpack.Marshal(&e)
	return b, errors.Wrap(err, "encode entry")
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return e, errs.E(errs.Codec, "store.decodeEntry", err)
	}
	return e, nil
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].Created.Equal(es[j].Created) {
			return es[i].Created.After(es[j].Created)
		}
		return es[i].Key < es[j].Key
	})
}

func notFound(op, key string) error {
	return errs.Errorf(errs.NotFound, op, "no stored video %q", key)
}

// Discard stores nothing.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte, Entry) error { return nil }
func (Discard) Get(_ context.Context, key string) ([]byte, error) {
	return nil, notFound("store.Get", key)
}
func (Discard) List(context.Context) ([]Entry, error) { return nil, nil }
