// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package integration holds the browser-based end-to-end tests. Every test in
// this package drives a real browser against a deployed instance of the
// tracker, so they are all skipped under `go test -short`. Parallelism across
// browser sessions is left to the test runner and the remote grid.
package integration

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/delivery-tracker/e2e-tests/test/testlib"
	"github.com/delivery-tracker/e2e-tests/test/testlib/browsertest"
)

// ragStatuses are the delivery-health values the tracker renders, including the
// in-between variants.
var ragStatuses = []string{"Red", "Amber/Red", "Amber", "Green/Amber", "Green"}

// projectPathPattern matches the canonical URL of a single project page.
var projectPathPattern = regexp.MustCompile(`/projects/\d+(\?.*)?\z`)

// uniqueProjectName returns a project name unlikely to collide with anything
// else created during this run or left behind by earlier ones.
func uniqueProjectName() string {
	return fmt.Sprintf("e2e test project %s", uuid.NewString()[:8])
}

// browseToSignedInHomepage navigates to the project list, which requires
// authentication, and completes the identity provider login flow.
func browseToSignedInHomepage(t *testing.T, b *browsertest.Browser, env *testlib.TestEnv) {
	t.Helper()

	b.Navigate(t, env.AppURL+"/projects")
	browsertest.LoginToAzureAD(t, b, env)
	b.WaitForVisibleElements(t, "#projects")
}

// createTestProject fills in the new-project form and waits for the project
// page to render. The browser must already be signed in. It returns the
// generated project name.
func createTestProject(t *testing.T, b *browsertest.Browser, env *testlib.TestEnv, ragStatus string) string {
	t.Helper()

	name := uniqueProjectName()
	t.Logf("creating project %q with status %q", name, ragStatus)

	b.Navigate(t, env.AppURL+"/projects/new")
	b.WaitForVisibleElements(t, "input#project-name", "select#rag-status", "button[type=submit]")

	b.SendKeysToFirstMatch(t, "input#project-name", name)
	b.SetValueOfFirstMatch(t, "select#rag-status", ragStatus)
	b.ClickFirstMatch(t, "button[type=submit]")

	b.WaitForURL(t, projectPathPattern)
	require.Equal(t, name, strings.TrimSpace(b.TextOfFirstMatch(t, "h1.project-title")))
	return name
}
