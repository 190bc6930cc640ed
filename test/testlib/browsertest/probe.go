// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package browsertest

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const probeTick = 250 * time.Millisecond

// Probe describes one expected screen in an externally-controlled page flow.
// Find reports whether the screen's target element is currently present and
// interactable; Act performs the interaction once it is.
type Probe struct {
	Name string
	Find func(ctx context.Context) (bool, error)
	Act  func(ctx context.Context) error

	// Optional screens may or may not appear, e.g. a "stay signed in" prompt.
	// Their absence is not an error; the sequence proceeds after Budget lapses.
	Optional bool

	// Budget bounds how long this probe polls before giving up. Zero means
	// "whatever remains of the sequence's shared budget". Optional probes
	// should set a short budget so a skipped screen does not eat the rest
	// of the sequence's time.
	Budget time.Duration
}

// RunProbeSequence tries each probe in order, polling Find until it succeeds or
// the probe's time is up. All probes share one overall budget: time spent on an
// earlier screen is not available to later ones. A required probe which never
// finds its target fails the sequence; an optional one is skipped.
func RunProbeSequence(ctx context.Context, sharedBudget time.Duration, probes ...Probe) error {
	deadline := time.Now().Add(sharedBudget)

	for _, probe := range probes {
		probeDeadline := deadline
		if probe.Budget > 0 {
			if d := time.Now().Add(probe.Budget); d.Before(probeDeadline) {
				probeDeadline = d
			}
		}

		found, err := pollUntil(ctx, probeDeadline, probe.Find)
		if err != nil {
			return errors.Wrapf(err, "probe %q", probe.Name)
		}

		if !found {
			if probe.Optional {
				continue
			}
			return errors.Errorf("probe %q: target never appeared within the time budget", probe.Name)
		}

		if probe.Act != nil {
			if err := probe.Act(ctx); err != nil {
				return errors.Wrapf(err, "probe %q", probe.Name)
			}
		}
	}

	return nil
}

func pollUntil(ctx context.Context, deadline time.Time, find func(ctx context.Context) (bool, error)) (bool, error) {
	for {
		found, err := find(ctx)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
		if !time.Now().Add(probeTick).Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(probeTick):
		}
	}
}
