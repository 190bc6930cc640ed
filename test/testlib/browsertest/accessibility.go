// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package browsertest

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	chromedpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"

	"github.com/delivery-tracker/e2e-tests/internal/reports"
)

// axe.run() walks the whole DOM, which can take a while on the heavier pages.
const scanTimeout = 60 * time.Second

// RunAccessibilityScan injects the axe-core script from scriptPath into the
// current page, runs a scan, and returns the decoded violations. The scanner
// owns the result schema; we decode only what the report needs.
func (b *Browser) RunAccessibilityScan(t *testing.T, scriptPath string) []reports.Violation {
	t.Helper()

	src, err := os.ReadFile(scriptPath)
	require.NoErrorf(t, err, "could not read the accessibility scanner script from %q", scriptPath)

	t.Logf("scanning %s for accessibility violations", b.Location(t))

	var raw string
	b.runWithTimeout(t, scanTimeout,
		chromedp.Evaluate(string(src), nil),
		chromedp.Evaluate(
			`axe.run().then(results => JSON.stringify(results.violations))`,
			&raw,
			func(p *chromedpruntime.EvaluateParams) *chromedpruntime.EvaluateParams {
				return p.WithAwaitPromise(true)
			},
		),
	)

	var violations []reports.Violation
	require.NoError(t, json.Unmarshal([]byte(raw), &violations), "the scanner returned unexpected JSON")
	return violations
}
