// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"fmt"
	"os"
	"testing"
)

// recordFailureMarker registers a cleanup which writes the pipeline failure
// marker file if the test fails. The pipeline only checks for the file's
// existence, so concurrent writers clobbering each other is fine; the file
// contents name one failed test as a debugging convenience.
func recordFailureMarker(t *testing.T, path string) {
	t.Helper()
	if path == "" {
		return
	}

	t.Cleanup(func() {
		if !t.Failed() {
			return
		}
		if err := os.WriteFile(path, []byte(fmt.Sprintf("failed: %s\n", t.Name())), 0o644); err != nil {
			t.Logf("could not write failure marker %q: %v", path, err)
		}
	})
}
