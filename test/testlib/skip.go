// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import "testing"

// SkipUnlessIntegration skips the current test if `-short` has been passed to `go test`.
// All of the browser tests drive a real deployed application, so they are gated this way.
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping browser test because of '-short' flag")
	}
}

// SkipUnlessAccessibilityScansConfigured skips the current test unless the
// axe-core script has been provided via the environment.
func SkipUnlessAccessibilityScansConfigured(t *testing.T, env *TestEnv) {
	t.Helper()

	if env.AxeScriptPath == "" {
		t.Skip("accessibility test requires the TRACKER_TEST_AXE_JS_PATH env var")
	}
}
