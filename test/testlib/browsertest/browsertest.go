// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package browsertest provides helpers for our browser-based tests.
package browsertest

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/dom"
	chromedpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"

	"github.com/delivery-tracker/e2e-tests/test/testlib"
)

// Browser abstracts the specific browser driver library that we use and provides an interface
// for tests to interact with the browser.
type Browser struct {
	chromeCtx       context.Context
	consoleEvents   []consoleEvent
	exceptionEvents []string
	lock            sync.RWMutex
}

// consoleEvent tracks calls to the browser's console functions, like console.log().
type consoleEvent struct {
	api  string
	args []string
}

// OpenBrowser opens a web browser session and returns a Browser which allows further
// interactions with it. When the test environment configures a remote grid, the session
// runs there; otherwise a local Chrome subprocess is started. Either way the session is
// cleaned up at the end of the test, and each call to OpenBrowser creates a new session
// which does not share cookies with sessions from other calls.
func OpenBrowser(t *testing.T) *Browser {
	t.Helper()

	// Make it trivial to run all browser based tests via:
	// go test -v -race -count 1 -timeout 0 ./test/integration -run '/_Browser'
	require.Contains(t, rootTestName(t), "_Browser", "browser based tests must contain the string _Browser in their name")

	env := testlib.IntegrationEnv(t)

	var configCtx context.Context
	if env.GridURL != "" {
		t.Logf("opening browser session on remote grid")
		var configCancelFunc context.CancelFunc
		configCtx, configCancelFunc = chromedp.NewRemoteAllocator(context.Background(), gridWebsocketURL(t, env))
		t.Cleanup(configCancelFunc)
	} else {
		t.Logf("opening local browser subprocess")
		options := append(
			// Start with the defaults.
			chromedp.DefaultExecAllocatorOptions[:],

			// The staging deployments use certs from an internal CA.
			chromedp.IgnoreCertErrors,

			// Uncomment this to watch the browser while the test runs.
			// chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false), chromedp.Flag("mute-audio", false),
		)

		if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
			// When running on linux, assume that we are running inside a container for CI.
			// Need to pass an extra flag in this case to avoid getting an error while launching Chrome.
			options = append(options, chromedp.NoSandbox)
		}

		if env.Proxy != "" {
			t.Logf("configuring Chrome to use proxy %q", env.Proxy)
			options = append(options, chromedp.ProxyServer(env.Proxy))
		}

		var configCancelFunc context.CancelFunc
		configCtx, configCancelFunc = chromedp.NewExecAllocator(context.Background(), options...)
		t.Cleanup(configCancelFunc)
	}

	// Create a browser context.
	chromeCtx, chromeCancelFunc := chromedp.NewContext(configCtx,
		chromedp.WithLogf(log.Printf),
		chromedp.WithErrorf(log.Printf),
	)
	t.Cleanup(chromeCancelFunc)

	b := &Browser{chromeCtx: chromeCtx}

	// Subscribe to console events and exceptions to make them available later.
	chromedp.ListenTarget(chromeCtx, func(ev any) {
		switch ev := ev.(type) {
		case *chromedpruntime.EventConsoleAPICalled:
			args := make([]string, len(ev.Args))
			for i, arg := range ev.Args {
				args[i] = fmt.Sprintf("%s", arg.Value) //nolint:gosimple // this is an acceptable way to get a string
			}
			b.lock.Lock()
			defer b.lock.Unlock()
			b.consoleEvents = append(b.consoleEvents, consoleEvent{
				api:  ev.Type.String(),
				args: args,
			})
		case *chromedpruntime.EventExceptionThrown:
			b.lock.Lock()
			defer b.lock.Unlock()
			b.exceptionEvents = append(b.exceptionEvents, ev.ExceptionDetails.Error())
		}
	})

	// Start the session. Do not use a timeout here or else the browser will close after that timeout.
	// The session will be cleaned up at the end of the test when the browser context is cancelled.
	require.NoError(t, chromedp.Run(chromeCtx))

	// To aid in debugging test failures, print the events received from the browser at the end of the test.
	t.Cleanup(func() {
		b.lock.RLock()
		defer b.lock.RUnlock()

		if len(b.consoleEvents) > 0 {
			t.Logf("Printing %d browser console events at end of test...", len(b.consoleEvents))
		}
		for _, e := range b.consoleEvents {
			args := make([]string, len(e.args))
			for i, arg := range e.args {
				args[i] = fmt.Sprintf("%q", testlib.MaskTokens(arg))
			}
			t.Logf("console.%s with args: [%s]", e.api, strings.Join(args, ", "))
		}

		if len(b.exceptionEvents) > 0 {
			t.Logf("Printing %d browser exception events at end of test...", len(b.exceptionEvents))
		}
		for _, e := range b.exceptionEvents {
			t.Logf("exception: %s", e)
		}

		// If the test failed, dump helpful debugging info from the browser's final page.
		if t.Failed() {
			b.dumpPage(t)
		}
	})

	return b
}

// gridWebsocketURL builds the CDP websocket URL for the remote grid, attaching
// the grid credentials as query parameters the way the grid expects.
func gridWebsocketURL(t *testing.T, env *testlib.TestEnv) string {
	t.Helper()

	u, err := url.Parse(env.GridURL)
	require.NoErrorf(t, err, "TRACKER_TEST_GRID_URL %q must be a valid websocket URL", env.GridURL)

	q := u.Query()
	q.Set("user", env.GridUsername)
	q.Set("key", env.GridAccessKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Browser) dumpPage(t *testing.T) {
	// Log the URL of the current page.
	t.Logf("Browser URL from end of test %q: %s", t.Name(), testlib.MaskTokens(b.Location(t)))

	// Log the title of the current page.
	t.Logf("Browser page title from end of test %q: %q", t.Name(), b.Title(t))

	// Log a screenshot of the current page.
	var screenBuf []byte
	b.runWithTimeout(t, b.timeout(), chromedp.FullScreenshot(&screenBuf, 10)) // low quality to make it smaller
	t.Logf("Browser screenshot (base64 encoded jpeg format) from end of test %q:\n%s\n",
		t.Name(), base64.StdEncoding.EncodeToString(screenBuf))

	// Log the HTML of the current page.
	var html string
	b.runWithTimeout(t, b.timeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	var htmlBuf bytes.Buffer
	gz := gzip.NewWriter(&htmlBuf)
	_, err := gz.Write([]byte(html))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	t.Logf("Browser html (gzip and base64 encoded) from end of test %q:\n%s\n",
		t.Name(), base64.StdEncoding.EncodeToString(htmlBuf.Bytes()))
}

func (b *Browser) timeout() time.Duration {
	return 30 * time.Second
}

func (b *Browser) runWithTimeout(t *testing.T, timeout time.Duration, actions ...chromedp.Action) {
	t.Helper()
	timeoutCtx, cancel := context.WithTimeout(b.chromeCtx, timeout)
	t.Cleanup(cancel)

	err := chromedp.Run(timeoutCtx, actions...)
	if err != nil && err == context.Canceled || err == context.DeadlineExceeded {
		require.NoError(t, err, "the browser operation took longer than the allowed timeout")
	}
	require.NoError(t, err, "the browser operation failed")
}

func (b *Browser) Navigate(t *testing.T, url string) {
	t.Helper()
	b.runWithTimeout(t, b.timeout(), chromedp.Navigate(url))
}

func (b *Browser) Location(t *testing.T) string {
	t.Helper()
	var url string
	b.runWithTimeout(t, b.timeout(), chromedp.Location(&url))
	return url
}

func (b *Browser) Title(t *testing.T) string {
	t.Helper()
	var title string
	b.runWithTimeout(t, b.timeout(), chromedp.Title(&title))
	return title
}

func (b *Browser) WaitForVisibleElements(t *testing.T, cssSelectors ...string) {
	t.Helper()
	for _, s := range cssSelectors {
		b.runWithTimeout(t, b.timeout(), chromedp.WaitVisible(s, chromedp.ByQuery))
	}
}

func (b *Browser) TextOfFirstMatch(t *testing.T, cssSelector string) string {
	t.Helper()
	var text string
	b.runWithTimeout(t, b.timeout(), chromedp.Text(cssSelector, &text, chromedp.NodeVisible, chromedp.ByQuery))
	return text
}

// TextOfAllMatches returns the trimmed text content of every element matching
// the selector, in document order. An empty result is not an error; callers
// assert on the contents.
func (b *Browser) TextOfAllMatches(t *testing.T, cssSelector string) []string {
	t.Helper()
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(e => e.textContent.trim())`,
		cssSelector,
	)
	var texts []string
	b.runWithTimeout(t, b.timeout(), chromedp.Evaluate(js, &texts))
	return texts
}

func (b *Browser) AttrValueOfFirstMatch(t *testing.T, cssSelector string, attributeName string) string {
	t.Helper()
	var value string
	var ok bool
	b.runWithTimeout(t, b.timeout(), chromedp.AttributeValue(cssSelector, attributeName, &value, &ok, chromedp.ByQuery))
	require.Truef(t, ok, "did not find attribute named %q on first element returned by selector %q", attributeName, cssSelector)
	return value
}

func (b *Browser) SendKeysToFirstMatch(t *testing.T, cssSelector string, runesToType string) {
	t.Helper()
	b.runWithTimeout(t, b.timeout(), chromedp.SendKeys(cssSelector, runesToType, chromedp.NodeVisible, chromedp.NodeEnabled, chromedp.ByQuery))
}

// SetValueOfFirstMatch sets the value of a form control, e.g. choosing an
// option of a <select> by its value attribute.
func (b *Browser) SetValueOfFirstMatch(t *testing.T, cssSelector string, value string) {
	t.Helper()
	b.runWithTimeout(t, b.timeout(), chromedp.SetValue(cssSelector, value, chromedp.ByQuery))
}

func (b *Browser) ClickFirstMatch(t *testing.T, cssSelector string) {
	t.Helper()
	b.runWithTimeout(t, b.timeout(), chromedp.Click(cssSelector, chromedp.NodeVisible, chromedp.NodeEnabled, chromedp.ByQuery))
}

// WaitForURL expects the page to eventually navigate to a URL matching the specified pattern. It waits for this
// to occur and times out, failing the test, if it never does.
func (b *Browser) WaitForURL(t *testing.T, regex *regexp.Regexp) {
	t.Helper()
	var lastURL string
	testlib.RequireEventuallyf(t,
		func(requireEventually *require.Assertions) {
			var url string
			requireEventually.NoError(chromedp.Run(b.chromeCtx, chromedp.Location(&url)))
			if url != lastURL {
				t.Logf("saw URL %s", testlib.MaskTokens(url))
				lastURL = url
			}
			requireEventually.Regexp(regex, url)
		},
		30*time.Second,
		100*time.Millisecond,
		"expected to browse to %s, but never got there",
		regex,
	)
}

// WaitForURLFunc is like WaitForURL for conditions which are awkward to express
// as a single regexp, e.g. "no longer on the identity provider's domain". A
// failure to read the browser's location fails the test immediately rather
// than being retried.
func (b *Browser) WaitForURLFunc(t *testing.T, description string, acceptable func(url string) bool) {
	t.Helper()
	var lastURL string
	testlib.RequireEventuallyWithoutError(t,
		func() (bool, error) {
			var url string
			if err := chromedp.Run(b.chromeCtx, chromedp.Location(&url)); err != nil {
				return false, err
			}
			if url != lastURL {
				t.Logf("saw URL %s", testlib.MaskTokens(url))
				lastURL = url
			}
			return acceptable(url), nil
		},
		30*time.Second,
		100*time.Millisecond,
		fmt.Sprintf("expected to browse to %s, but never got there", description),
	)
}

// clickNow clicks the first match of selector without the usual per-action
// timeout wrapper; the caller owns ctx.
func (b *Browser) clickNow(ctx context.Context, selector string) error {
	return chromedp.Run(ctx, chromedp.Click(selector, chromedp.NodeVisible, chromedp.NodeEnabled, chromedp.ByQuery))
}

// anyVisibleNow reports which of the candidate selectors, in priority order,
// currently matches a visible and enabled element. It does not wait.
func (b *Browser) anyVisibleNow(ctx context.Context, selectors []string) (string, error) {
	for _, s := range selectors {
		js := fmt.Sprintf(
			`(() => { const e = document.querySelector(%q); return !!e && !e.disabled && e.offsetParent !== null; })()`,
			s,
		)
		var visible bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(js, &visible)); err != nil {
			return "", err
		}
		if visible {
			return s, nil
		}
	}
	return "", nil
}

func rootTestName(t *testing.T) string {
	switch names := strings.SplitN(t.Name(), "/", 3); len(names) {
	case 0:
		panic("impossible")

	case 1:
		return names[0]

	case 2, 3:
		if strings.HasPrefix(names[0], "TestIntegration") {
			return names[1]
		}
		return names[0]

	default:
		panic("impossible")
	}
}
