// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package publisher copies generated report directories to S3 so that the CI
// pipeline can link to them after a test run.
package publisher

import (
	"context"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds the number of parallel uploads. Report directories
// hold many small files, so a modest fan-out is enough.
const defaultConcurrency = 8

// ObjectPutter is the slice of the S3 client used by the publisher.
// *s3.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Destination is a parsed results location, e.g. "s3://my-bucket/tracker/run-42".
type Destination struct {
	Bucket string
	Prefix string
}

// ParseDestination parses an s3:// URL into a Destination. The prefix may be empty.
func ParseDestination(raw string) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, errors.Wrapf(err, "invalid results destination %q", raw)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Destination{}, errors.Errorf("results destination %q must look like s3://bucket/prefix", raw)
	}
	return Destination{
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// Key returns the object key for a file at relPath under the named subpath of
// the destination.
func (d Destination) Key(subpath, relPath string) string {
	parts := []string{}
	if d.Prefix != "" {
		parts = append(parts, d.Prefix)
	}
	parts = append(parts, subpath, filepath.ToSlash(relPath))
	return strings.Join(parts, "/")
}

// Publisher uploads local directories of report files to a Destination.
type Publisher struct {
	client      ObjectPutter
	log         *zap.SugaredLogger
	concurrency int
}

func New(client ObjectPutter, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		client:      client,
		log:         log,
		concurrency: defaultConcurrency,
	}
}

// PublishDir recursively uploads every regular file under localDir to the
// destination, keyed under a subpath named after the directory itself. It
// returns the number of files uploaded. The directory must exist.
func (p *Publisher) PublishDir(ctx context.Context, dest Destination, localDir string) (int, error) {
	info, err := os.Stat(localDir)
	if err != nil {
		return 0, errors.Wrapf(err, "could not read report directory %q", localDir)
	}
	if !info.IsDir() {
		return 0, errors.Errorf("report path %q is not a directory", localDir)
	}

	subpath := filepath.Base(filepath.Clean(localDir))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)

	count := 0
	walkErr := filepath.WalkDir(localDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}

		count++
		group.Go(func() error {
			return p.uploadFile(groupCtx, dest, subpath, localDir, relPath)
		})
		return nil
	})
	if walkErr != nil {
		// Wait for any in-flight uploads before reporting the walk failure.
		_ = group.Wait()
		return 0, errors.Wrapf(walkErr, "could not walk report directory %q", localDir)
	}

	if err := group.Wait(); err != nil {
		return 0, err
	}

	p.log.Infow("published report directory", "dir", localDir, "files", count, "bucket", dest.Bucket)
	return count, nil
}

func (p *Publisher) uploadFile(ctx context.Context, dest Destination, subpath, localDir, relPath string) error {
	f, err := os.Open(filepath.Join(localDir, relPath))
	if err != nil {
		return errors.Wrapf(err, "could not open report file %q", relPath)
	}
	defer func() { _ = f.Close() }()

	key := dest.Key(subpath, relPath)
	p.log.Debugw("uploading report file", "key", key)

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(dest.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(relPath)),
	})
	return errors.Wrapf(err, "could not upload %q", key)
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
