// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Command publish-results copies the report directories generated by a test run
// to S3 so the pipeline can archive and link to them. It exits non-zero when the
// destination is not configured or when no report directory exists, so the
// pipeline can surface a broken publishing step.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/delivery-tracker/e2e-tests/internal/publisher"
)

// resultsBucketEnvVar names the destination, e.g. "s3://results-bucket/tracker/run-42".
const resultsBucketEnvVar = "TRACKER_TEST_RESULTS_BUCKET"

type publishFlags struct {
	destination      string
	testResultsDir   string
	accessibilityDir string
	dryRun           bool
}

func newPublishCommand(log *zap.SugaredLogger) *cobra.Command {
	flags := &publishFlags{}

	cmd := &cobra.Command{
		Use:          "publish-results",
		Short:        "Copy generated test report directories to S3",
		Args:         cobra.NoArgs,
		SilenceUsage: true, // do not print usage message when the command fails
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd.Context(), log, flags)
		},
	}

	cmd.Flags().StringVar(&flags.destination, "destination", os.Getenv(resultsBucketEnvVar),
		fmt.Sprintf("s3://bucket/prefix destination (defaults to $%s)", resultsBucketEnvVar))
	cmd.Flags().StringVar(&flags.testResultsDir, "test-results-dir", "test-results",
		"local directory of test result files")
	cmd.Flags().StringVar(&flags.accessibilityDir, "accessibility-dir", "accessibility-reports",
		"local directory of accessibility report files")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"list what would be uploaded without calling S3")

	return cmd
}

func runPublish(ctx context.Context, log *zap.SugaredLogger, flags *publishFlags) error {
	// Validate the destination before touching anything else so that a
	// misconfigured pipeline fails without any upload attempt.
	if flags.destination == "" {
		return errors.Errorf("no results destination: set $%s or pass --destination", resultsBucketEnvVar)
	}
	dest, err := publisher.ParseDestination(flags.destination)
	if err != nil {
		return err
	}

	var existingDirs []string
	for _, dir := range []string{flags.testResultsDir, flags.accessibilityDir} {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			existingDirs = append(existingDirs, dir)
			continue
		}
		log.Infow("report directory not found, skipping", "dir", dir)
	}
	if len(existingDirs) == 0 {
		return errors.Errorf("neither %q nor %q exists, nothing to publish", flags.testResultsDir, flags.accessibilityDir)
	}

	if flags.dryRun {
		log.Infow("dry run, not uploading", "destination", flags.destination, "dirs", existingDirs)
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load AWS configuration")
	}
	p := publisher.New(s3.NewFromConfig(awsCfg), log)

	for _, dir := range existingDirs {
		count, err := p.PublishDir(ctx, dest, dir)
		if err != nil {
			return err
		}
		log.Infow("published", "dir", dir, "files", count, "destination", flags.destination)
	}
	return nil
}

func main() {
	zapLog, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zapLog.Sync() }()
	log := zapLog.Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := newPublishCommand(log).ExecuteContext(ctx); err != nil {
		log.Errorw("publishing failed", "error", err)
		os.Exit(1)
	}
}
