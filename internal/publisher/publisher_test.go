// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePutter struct {
	lock    sync.Mutex
	objects map[string]string // key -> body
	buckets map[string]bool
	types   map[string]string // key -> content type
}

func newFakePutter() *fakePutter {
	return &fakePutter{
		objects: map[string]string{},
		buckets: map[string]bool{},
		types:   map[string]string{},
	}
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.objects[*params.Key] = string(body)
	f.buckets[*params.Bucket] = true
	f.types[*params.Key] = *params.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) keys() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantBucket string
		wantPrefix string
		wantErr    string
	}{
		{
			name:       "bucket with prefix",
			raw:        "s3://results-bucket/tracker/run-42",
			wantBucket: "results-bucket",
			wantPrefix: "tracker/run-42",
		},
		{
			name:       "bucket only",
			raw:        "s3://results-bucket",
			wantBucket: "results-bucket",
		},
		{
			name:       "trailing slash trimmed",
			raw:        "s3://results-bucket/tracker/",
			wantBucket: "results-bucket",
			wantPrefix: "tracker",
		},
		{
			name:    "wrong scheme",
			raw:     "https://results-bucket/tracker",
			wantErr: "must look like s3://bucket/prefix",
		},
		{
			name:    "missing bucket",
			raw:     "s3://",
			wantErr: "must look like s3://bucket/prefix",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dest, err := ParseDestination(test.raw)
			if test.wantErr != "" {
				require.ErrorContains(t, err, test.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.wantBucket, dest.Bucket)
			require.Equal(t, test.wantPrefix, dest.Prefix)
		})
	}
}

func TestDestinationKey(t *testing.T) {
	withPrefix := Destination{Bucket: "b", Prefix: "tracker/run-42"}
	require.Equal(t, "tracker/run-42/accessibility-reports/index.html", withPrefix.Key("accessibility-reports", "index.html"))

	noPrefix := Destination{Bucket: "b"}
	require.Equal(t, "test-results/sub/results.xml", noPrefix.Key("test-results", filepath.Join("sub", "results.xml")))
}

func TestPublishDirUploadsEveryFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "accessibility-reports")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "home.json"), []byte("{}"), 0o644))

	putter := newFakePutter()
	p := New(putter, zaptest.NewLogger(t).Sugar())

	count, err := p.PublishDir(context.Background(), Destination{Bucket: "results-bucket", Prefix: "run-1"}, dir)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.Equal(t, []string{
		"run-1/accessibility-reports/index.html",
		"run-1/accessibility-reports/pages/home.json",
	}, putter.keys())
	require.True(t, putter.buckets["results-bucket"])
	require.Contains(t, putter.types["run-1/accessibility-reports/index.html"], "text/html")
	require.Contains(t, putter.types["run-1/accessibility-reports/pages/home.json"], "application/json")
}

func TestPublishDirMissingDirectory(t *testing.T) {
	putter := newFakePutter()
	p := New(putter, zaptest.NewLogger(t).Sugar())

	_, err := p.PublishDir(context.Background(), Destination{Bucket: "b"}, filepath.Join(t.TempDir(), "does-not-exist"))
	require.ErrorContains(t, err, "could not read report directory")
	require.Empty(t, putter.keys(), "no upload should be attempted for a missing directory")
}

func TestPublishDirRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	p := New(newFakePutter(), zaptest.NewLogger(t).Sugar())
	_, err := p.PublishDir(context.Background(), Destination{Bucket: "b"}, file)
	require.ErrorContains(t, err, "is not a directory")
}
