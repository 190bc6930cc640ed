// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/delivery-tracker/e2e-tests/test/testlib"
	"github.com/delivery-tracker/e2e-tests/test/testlib/browsertest"
)

// TestServiceStandardAssessment_Browser records a rating against the first
// service standard point for one profession and checks that it renders. This
// flavor covers environments where assessments are a standalone page.
func TestServiceStandardAssessment_Browser(t *testing.T) {
	env := testlib.IntegrationEnv(t).WithoutCapability(testlib.TabbedProjectView)

	requireAssessmentRoundTrip(t, env, func(t *testing.T, b *browsertest.Browser, projectURL string) {
		b.Navigate(t, strings.TrimRight(projectURL, "/")+"/assessments")
	})
}

// TestServiceStandardAssessmentViaTabs_Browser is the same flow for
// environments which render assessments as a tab on the project page.
func TestServiceStandardAssessmentViaTabs_Browser(t *testing.T) {
	env := testlib.IntegrationEnv(t).WithCapability(testlib.TabbedProjectView)

	requireAssessmentRoundTrip(t, env, func(t *testing.T, b *browsertest.Browser, projectURL string) {
		b.Navigate(t, projectURL)
		b.ClickFirstMatch(t, "a#tab-assessments")
	})
}

// requireAssessmentRoundTrip creates a project, records an assessment rating
// through openAssessments, and confirms the rating survives a reload.
func requireAssessmentRoundTrip(
	t *testing.T,
	env *testlib.TestEnv,
	openAssessments func(t *testing.T, b *browsertest.Browser, projectURL string),
) {
	t.Helper()

	b := browsertest.OpenBrowser(t)
	browseToSignedInHomepage(t, b, env)
	createTestProject(t, b, env, "Amber")
	projectURL := b.Location(t)

	openAssessments(t, b, projectURL)

	// The assessment page lists the service standard points with a rating
	// control per profession.
	b.WaitForVisibleElements(t, "#service-standards", "select#profession")
	standards := b.TextOfAllMatches(t, "#service-standards .standard-title")
	require.NotEmpty(t, standards, "the assessment page should list service standard points")

	b.SetValueOfFirstMatch(t, "select#profession", "delivery")
	b.SetValueOfFirstMatch(t, "#service-standards select.standard-rating", "Amber")
	b.ClickFirstMatch(t, "button#save-assessment")

	b.WaitForVisibleElements(t, ".assessment-saved")

	// Reload and confirm the rating stuck.
	openAssessments(t, b, projectURL)
	b.WaitForVisibleElements(t, "#service-standards", "select#profession")
	b.SetValueOfFirstMatch(t, "select#profession", "delivery")
	testlib.RequireEventually(t, func(requireEventually *require.Assertions) {
		requireEventually.Equal("Amber",
			strings.TrimSpace(b.AttrValueOfFirstMatch(t, "#service-standards select.standard-rating", "data-saved-rating")))
	}, 30*time.Second, 2*time.Second, "saved assessment rating never rendered")
}
