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

package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/boriwo/termvid/internal/container"
)

const metaExt = ".meta"

// DirStore keeps <key>.vide and <key>.meta files in one directory.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store dir %s", dir)
	}
	return &DirStore{Dir: dir}, nil
}

func (s *DirStore) path(key, ext string) string {
	return filepath.Join(s.Dir, key+ext)
}

func (s *DirStore) Put(_ context.Context, key string, data []byte, e Entry) error {
	e.Key = key
	e.Size = int64(len(data))
	meta, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path(key, container.Extension), data); err != nil {
		return err
	}
	return writeAtomic(s.path(key, metaExt), meta)
}

func (s *DirStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key, container.Extension))
	if os.IsNotExist(err) {
		return nil, notFound("store.Get", key)
	}
	return data, errors.Wrapf(err, "read %s", key)
}

func (s *DirStore) List(_ context.Context) ([]Entry, error) {
	names, err := filepath.Glob(filepath.Join(s.Dir, "*"+metaExt))
	if err != nil {
		return nil, errors.Wrap(err, "list store")
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		e, err := decodeEntry(b)
		if err != nil {
			return nil, errors.Wrap(err, filepath.Base(name))
		}
		if e.Key == "" {
			e.Key = strings.TrimSuffix(filepath.Base(name), metaExt)
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// writeAtomic renames a finished temp file over path so readers never see
// a partial container.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename %s", path)
}
