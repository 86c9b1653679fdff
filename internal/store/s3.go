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
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/boriwo/termvid/internal/config"
	"github.com/boriwo/termvid/internal/container"
	"github.com/boriwo/termvid/internal/errs"
)

// S3API is the part of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps containers in a bucket, for S3 and compatible providers.
type S3Store struct {
	Client S3API
	Bucket string
	Prefix string
}

// NewS3Store uses the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.S3) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errs.Errorf(errs.Format, "store.NewS3Store", "bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return &S3Store{
		Client: s3.NewFromConfig(awsCfg, s3Opts...),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) objectKey(key, ext string) string {
	if s.Prefix == "" {
		return key + ext
	}
	return strings.TrimSuffix(s.Prefix, "/") + "/" + key + ext
}

func (s *S3Store) put(ctx context.Context, name string, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "put s3://%s/%s", s.Bucket, name)
}

func (s *S3Store) get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, errs.E(errs.NotFound, "store.Get", err)
		}
		return nil, errors.Wrapf(err, "get s3://%s/%s", s.Bucket, name)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	return data, errors.Wrapf(err, "read s3://%s/%s", s.Bucket, name)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, e Entry) error {
	e.Key = key
	e.Size = int64(len(data))
	meta, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.objectKey(key, container.Extension), data); err != nil {
		return err
	}
	return s.put(ctx, s.objectKey(key, metaExt), meta)
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, s.objectKey(key, container.Extension))
}

func (s *S3Store) List(ctx context.Context) ([]Entry, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket)}
	if s.Prefix != "" {
		in.Prefix = aws.String(strings.TrimSuffix(s.Prefix, "/") + "/")
	}
	var entries []Entry
	pages := s3.NewListObjectsV2Paginator(s.Client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "list s3://%s", s.Bucket)
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			if !strings.HasSuffix(name, metaExt) {
				continue
			}
			b, err := s.get(ctx, name)
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(b)
			if err != nil {
				return nil, errors.Wrap(err, name)
			}
			entries = append(entries, e)
		}
	}
	sortEntries(entries)
	return entries, nil
}
