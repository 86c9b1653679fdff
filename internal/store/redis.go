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

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/boriwo/termvid/internal/config"
	"github.com/boriwo/termvid/internal/errs"
)

// RedisStore keeps each container in a hash with data and meta fields and
// indexes the keys in a set.
type RedisStore struct {
	Client *goredis.Client
	Prefix string
}

func NewRedisStore(cfg config.Redis) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errs.Errorf(errs.Format, "store.NewRedisStore", "url is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errs.E(errs.Format, "store.NewRedisStore", errors.Wrap(err, "invalid redis url"))
	}
	return &RedisStore{Client: goredis.NewClient(opts), Prefix: cfg.Prefix}, nil
}

func (s *RedisStore) hashKey(key string) string { return s.Prefix + "video:" + key }
func (s *RedisStore) indexKey() string          { return s.Prefix + "videos" }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte, e Entry) error {
	e.Key = key
	e.Size = int64(len(data))
	meta, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.Client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, s.hashKey(key), "data", data, "meta", meta)
		p.SAdd(ctx, s.indexKey(), key)
		return nil
	})
	return errors.Wrapf(err, "store %s in redis", key)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.Client.HGet(ctx, s.hashKey(key), "data").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, notFound("store.Get", key)
	}
	return data, errors.Wrapf(err, "load %s from redis", key)
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	keys, err := s.Client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list redis index")
	}
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		b, err := s.Client.HGet(ctx, s.hashKey(key), "meta").Bytes()
		if errors.Is(err, goredis.Nil) {
			// indexed but evicted
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "load %s meta", key)
		}
		e, err := decodeEntry(b)
		if err != nil {
			return nil, errors.Wrap(err, key)
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
