// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package browsertest

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/delivery-tracker/e2e-tests/test/testlib"
)

const (
	azureADHost = "login.microsoftonline.com"

	// The IdP's screens are slow to render, especially on the first hit of a
	// run, so the whole traversal shares a generous budget.
	loginFlowBudget = 90 * time.Second

	// Optional screens get a short budget each so that skipping them does not
	// eat the rest of the flow's time.
	optionalScreenBudget = 5 * time.Second
)

// Azure AD has shipped several generations of its login markup and serves
// different variants to different tenants, so each screen is probed with its
// candidate selectors in priority order.
var (
	accountPickerSelectors = []string{"#otherTileText", "div#otherTile"}
	emailSelectors         = []string{"input[type=email]", "input#i0116", "input[name=loginfmt]"}
	passwordSelectors      = []string{"input[type=password]", "input#i0118", "input[name=passwd]"}
	submitSelectors        = []string{"input[type=submit]", "#idSIButton9"}

	// The "Stay signed in?" prompt is recognized by its own markup. Note that
	// its checkbox only toggles "don't show this again"; advancing the page
	// requires clicking the submit button.
	staySignedInScreenSelectors   = []string{"#KmsiCheckboxField", "input[name=DontShowAgain]", "#kmsiTitle"}
	staySignedInCheckboxSelectors = []string{"#KmsiCheckboxField", "input[name=DontShowAgain]"}
)

// LoginToAzureAD drives the browser through the identity provider's variable
// screen flow and waits until the session lands back on the application. The
// caller should already have navigated to a page which redirects to the IdP.
func LoginToAzureAD(t *testing.T, b *Browser, env *testlib.TestEnv) {
	t.Helper()

	// Expect to be redirected to the IdP.
	t.Logf("waiting for redirect to the %s login page", azureADHost)
	b.WaitForURL(t, regexp.MustCompile(`\Ahttps://`+regexp.QuoteMeta(azureADHost)+`/.*\z`))

	ctx, cancel := context.WithTimeout(b.chromeCtx, loginFlowBudget)
	defer cancel()

	err := RunProbeSequence(ctx, loginFlowBudget,
		// Returning sessions are sometimes offered a tile per known account
		// plus a "use another account" tile. Choose the latter so the email
		// screen shows, then fall through to it either way.
		b.clickProbe(t, "use another account", accountPickerSelectors, true),

		b.typeAndSubmitProbe(t, "email entry", emailSelectors, env.AzureUsername),
		b.typeAndSubmitProbe(t, "password entry", passwordSelectors, env.AzurePassword),

		// The "Stay signed in?" prompt may or may not appear depending on
		// tenant policy. Answer yes when it does, proceed quietly when not.
		b.staySignedInProbe(t),
	)
	require.NoError(t, err, "could not get through the identity provider's login flow")

	// The flow is only done once the session has left the IdP and is no longer
	// on a login path of the application.
	b.WaitForURLFunc(t, "a signed-in application page", isLoggedInURL)

	t.Logf("completed %s login as %s", azureADHost, env.AzureUsername)
}

// isLoggedInURL reports whether rawURL is neither on the identity provider's
// domain nor a login path of the application.
func isLoggedInURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Hostname(), azureADHost) {
		return false
	}
	path := strings.ToLower(u.EscapedPath())
	return !strings.Contains(path, "/login") && !strings.Contains(path, "/signin")
}

// clickProbe builds a Probe which clicks the first visible candidate selector.
func (b *Browser) clickProbe(t *testing.T, name string, selectors []string, optional bool) Probe {
	var selector string
	return Probe{
		Name:     name,
		Optional: optional,
		Budget:   optionalBudget(optional),
		Find: func(ctx context.Context) (bool, error) {
			var err error
			selector, err = b.anyVisibleNow(ctx, selectors)
			return selector != "", err
		},
		Act: func(ctx context.Context) error {
			t.Logf("login flow: clicking %q on the %s screen", selector, name)
			return b.clickNow(ctx, selector)
		},
	}
}

// staySignedInProbe builds the Probe for the optional "Stay signed in?" prompt.
func (b *Browser) staySignedInProbe(t *testing.T) Probe {
	return Probe{
		Name:     "stay signed in prompt",
		Optional: true,
		Budget:   optionalScreenBudget,
		Find: func(ctx context.Context) (bool, error) {
			found, err := b.anyVisibleNow(ctx, staySignedInScreenSelectors)
			return found != "", err
		},
		Act: func(ctx context.Context) error {
			t.Logf("login flow: accepting the stay signed in prompt")
			return acceptStaySignedIn(ctx, b)
		},
	}
}

// loginScreen is the part of Browser that acceptStaySignedIn drives.
type loginScreen interface {
	anyVisibleNow(ctx context.Context, selectors []string) (string, error)
	clickNow(ctx context.Context, selector string) error
}

// acceptStaySignedIn answers yes to the "Stay signed in?" prompt. It ticks the
// "don't show this again" checkbox when one is rendered, but the click which
// advances the page must always land on the submit button, never on the
// checkbox alone.
func acceptStaySignedIn(ctx context.Context, screen loginScreen) error {
	checkbox, err := screen.anyVisibleNow(ctx, staySignedInCheckboxSelectors)
	if err != nil {
		return err
	}
	if checkbox != "" {
		if err := screen.clickNow(ctx, checkbox); err != nil {
			return err
		}
	}

	submit, err := screen.anyVisibleNow(ctx, submitSelectors)
	if err != nil {
		return err
	}
	if submit == "" {
		return errors.New("could not find the submit button on the stay signed in prompt")
	}
	return screen.clickNow(ctx, submit)
}

// typeAndSubmitProbe builds a Probe which types a value into the first visible
// candidate selector and then clicks the screen's submit button.
func (b *Browser) typeAndSubmitProbe(t *testing.T, name string, selectors []string, value string) Probe {
	var selector string
	return Probe{
		Name: name,
		Find: func(ctx context.Context) (bool, error) {
			var err error
			selector, err = b.anyVisibleNow(ctx, selectors)
			return selector != "", err
		},
		Act: func(ctx context.Context) error {
			t.Logf("login flow: filling %q on the %s screen", selector, name)
			if err := chromedp.Run(ctx, chromedp.SendKeys(selector, value, chromedp.NodeVisible, chromedp.NodeEnabled, chromedp.ByQuery)); err != nil {
				return err
			}

			// The login pages run a lot of Javascript. Give it a moment to
			// catch up after typing before looking for the submit button, or
			// the click sometimes lands on a detached element.
			time.Sleep(1 * time.Second)

			submit, err := b.anyVisibleNow(ctx, submitSelectors)
			if err != nil {
				return err
			}
			if submit == "" {
				// Some variants submit on Enter with no button at all.
				return chromedp.Run(ctx, chromedp.SendKeys(selector, "\r", chromedp.ByQuery))
			}
			return b.clickNow(ctx, submit)
		},
	}
}

func optionalBudget(optional bool) time.Duration {
	if optional {
		return optionalScreenBudget
	}
	return 0
}
