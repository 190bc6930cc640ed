// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testlib

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

type Capability string

const (
	// TabbedProjectView is set for environments where the project page renders
	// its sections as tabs rather than a single scrolling page.
	TabbedProjectView Capability = "tabbedProjectView"

	// ProjectDeletion is set for environments where signed-in users may delete
	// projects from the UI.
	ProjectDeletion Capability = "projectDeletion"
)

// TestEnv captures all the external parameters consumed by our browser tests.
type TestEnv struct {
	t *testing.T

	Capabilities map[Capability]bool `json:"capabilities"`

	AppURL      string `json:"appURL"`
	Environment string `json:"environment"`

	AzureUsername string `json:"azureUsername"`
	AzurePassword string `json:"azurePassword"`

	GridURL       string `json:"gridURL"`
	GridUsername  string `json:"gridUsername"`
	GridAccessKey string `json:"gridAccessKey"`

	Proxy             string `json:"proxy"`
	AxeScriptPath     string `json:"axeScriptPath"`
	ReportsDir        string `json:"reportsDir"`
	FailureMarkerPath string `json:"failureMarkerPath"`
}

// memoizedTestEnvsByTest maps *testing.T pointers to *TestEnv. It exists so that we don't do all the
// environment parsing N times per test and so that any implicit assertions happen only once.
var memoizedTestEnvsByTest sync.Map //nolint:gochecknoglobals

// IntegrationEnv gets the test environment from OS environment variables. This
// method also implies SkipUnlessIntegration(). Required credentials are checked
// here, before any browser interaction, so a misconfigured run fails with a
// message naming the missing variable.
func IntegrationEnv(t *testing.T) *TestEnv {
	if existing, exists := memoizedTestEnvsByTest.Load(t); exists {
		return existing.(*TestEnv)
	}

	t.Helper()
	SkipUnlessIntegration(t)

	var result TestEnv
	capabilitiesYAML := os.Getenv("TRACKER_TEST_CAPABILITY_YAML")
	if capabilitiesFile := os.Getenv("TRACKER_TEST_CAPABILITY_FILE"); capabilitiesYAML == "" && capabilitiesFile != "" {
		bytes, err := os.ReadFile(capabilitiesFile)
		require.NoError(t, err)
		capabilitiesYAML = string(bytes)
	}
	require.NoError(t, parseCapabilities(capabilitiesYAML, &result),
		"TRACKER_TEST_CAPABILITY_YAML must be a valid YAML capabilities document")

	loadEnvVars(t, &result)
	result.t = t
	memoizedTestEnvsByTest.Store(t, &result)

	// In every test, make sure the pipeline failure marker gets written if the test fails.
	recordFailureMarker(t, result.FailureMarkerPath)

	return &result
}

func parseCapabilities(capabilitiesYAML string, result *TestEnv) error {
	if capabilitiesYAML == "" {
		return nil
	}
	return yaml.Unmarshal([]byte(capabilitiesYAML), result)
}

func needEnv(t *testing.T, key string) string {
	t.Helper()
	value := os.Getenv(key)
	require.NotEmptyf(t, value, "must specify %s env var for browser tests", key)
	return value
}

func wantEnv(key, dephault string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return dephault
	}
	return value
}

func loadEnvVars(t *testing.T, result *TestEnv) {
	t.Helper()

	result.AppURL = needEnv(t, "TRACKER_TEST_APP_URL")
	result.AzureUsername = needEnv(t, "TRACKER_TEST_AZURE_USERNAME")
	result.AzurePassword = needEnv(t, "TRACKER_TEST_AZURE_PASSWORD")

	result.Environment = wantEnv("TRACKER_TEST_ENVIRONMENT", "staging")

	// The remote grid is optional. When a hub URL is given, the key and secret
	// become required because the grid rejects anonymous sessions.
	result.GridURL = os.Getenv("TRACKER_TEST_GRID_URL")
	if result.GridURL != "" {
		result.GridUsername = needEnv(t, "TRACKER_TEST_GRID_USERNAME")
		result.GridAccessKey = needEnv(t, "TRACKER_TEST_GRID_ACCESS_KEY")
	}

	result.Proxy = os.Getenv("TRACKER_TEST_PROXY")
	result.AxeScriptPath = os.Getenv("TRACKER_TEST_AXE_JS_PATH")
	result.ReportsDir = wantEnv("TRACKER_TEST_REPORTS_DIR", "accessibility-reports")
	result.FailureMarkerPath = wantEnv("TRACKER_TEST_FAILURE_MARKER", ".test-failure")
}

// HasCapability reports whether the environment described itself as having the
// given capability. Environments which provide no capabilities document are
// treated as having none.
func (e *TestEnv) HasCapability(cap Capability) bool {
	return e.Capabilities[cap]
}

func (e *TestEnv) WithCapability(cap Capability) *TestEnv {
	e.t.Helper()
	if !e.HasCapability(cap) {
		e.t.Skipf("skipping browser test because test environment lacks the %q capability", cap)
	}
	return e
}

func (e *TestEnv) WithoutCapability(cap Capability) *TestEnv {
	e.t.Helper()
	if e.HasCapability(cap) {
		e.t.Skipf("skipping browser test because test environment has the %q capability", cap)
	}
	return e
}
