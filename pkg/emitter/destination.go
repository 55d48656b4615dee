// Copyright 2025 The Pipeflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package emitter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Destination is where a compiled artifact is written. One Write per
// compilation, overwrite semantics; concurrent writers to the same
// destination are the caller's problem to serialize.
type Destination interface {
	// Write stores the artifact bytes under the given media type, where
	// the backing store records one. A failed write returns a
	// DestinationError and leaves no partial artifact where that is
	// possible to guarantee (local writes are staged and renamed).
	Write(ctx context.Context, data []byte, contentType string) error

	// String returns the destination in its configured form.
	String() string
}

// S3Options tune the object-storage client for S3-compatible services.
type S3Options struct {
	// Region of the bucket.
	Region string
	// Endpoint overrides the service endpoint (MinIO and friends).
	Endpoint string
	// AccessKey/SecretKey are static credentials; when empty the default
	// AWS credential chain applies.
	AccessKey string
	SecretKey string
	// ForcePathStyle addresses the bucket in the path rather than the
	// host. Implied when Endpoint is set.
	ForcePathStyle bool
}

// ParseDestination turns a destination descriptor into a Destination.
// Recognized forms: an s3://bucket/key URI, or a local filesystem path.
func ParseDestination(raw string, s3opts S3Options) (Destination, error) {
	if raw == "" {
		return nil, destinationErrf(raw, "destination is empty")
	}
	if strings.HasPrefix(raw, "s3://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, destinationErr(raw, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, destinationErrf(raw, "s3 destination needs the s3://bucket/key form")
		}
		return &s3Destination{raw: raw, bucket: u.Host, key: key, opts: s3opts}, nil
	}
	return &localDestination{path: raw}, nil
}

// localDestination writes to the local filesystem. The artifact is staged
// next to the target and renamed into place, so a crashed write never
// leaves a truncated artifact behind.
type localDestination struct {
	path string
}

func (d *localDestination) String() string { return d.path }

func (d *localDestination) Write(_ context.Context, data []byte, _ string) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return destinationErr(d.path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return destinationErr(d.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return destinationErr(d.path, err)
	}
	if err := tmp.Close(); err != nil {
		return destinationErr(d.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return destinationErr(d.path, err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return destinationErr(d.path, err)
	}
	return nil
}

// s3Destination writes to an S3 (or S3-compatible) bucket.
type s3Destination struct {
	raw    string
	bucket string
	key    string
	opts   S3Options

	// client is injected in tests; when nil a real client is built from
	// the options and the default AWS config chain.
	client s3PutObjectAPI
}

type s3PutObjectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

func (d *s3Destination) String() string { return d.raw }

func (d *s3Destination) Write(ctx context.Context, data []byte, contentType string) error {
	client := d.client
	if client == nil {
		c, err := d.newClient(ctx)
		if err != nil {
			return destinationErr(d.raw, err)
		}
		client = c
	}

	input := &awss3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := client.PutObject(ctx, input)
	if err != nil {
		return destinationErr(d.raw, fmt.Errorf("uploading artifact: %w", err))
	}
	return nil
}

func (d *s3Destination) newClient(ctx context.Context) (*awss3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if d.opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(d.opts.Region))
	}
	if d.opts.AccessKey != "" && d.opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.opts.AccessKey, d.opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if d.opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(d.opts.Endpoint)
			o.UsePathStyle = true
		})
	} else if d.opts.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}
	return awss3.NewFromConfig(awsCfg, s3Opts...), nil
}
