// Copyright 2024-2026 the Delivery Tracker contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package browsertest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func foundImmediately(context.Context) (bool, error) { return true, nil }
func neverFound(context.Context) (bool, error)       { return false, nil }

func TestRunProbeSequenceRunsActionsInOrder(t *testing.T) {
	var acted []string
	act := func(name string) func(context.Context) error {
		return func(context.Context) error {
			acted = append(acted, name)
			return nil
		}
	}

	err := RunProbeSequence(context.Background(), 5*time.Second,
		Probe{Name: "email", Find: foundImmediately, Act: act("email")},
		Probe{Name: "password", Find: foundImmediately, Act: act("password")},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"email", "password"}, acted)
}

func TestRunProbeSequenceSkipsAbsentOptionalScreens(t *testing.T) {
	var acted []string

	err := RunProbeSequence(context.Background(), 5*time.Second,
		Probe{Name: "stay signed in", Find: neverFound, Optional: true, Budget: probeTick},
		Probe{Name: "landing", Find: foundImmediately, Act: func(context.Context) error {
			acted = append(acted, "landing")
			return nil
		}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"landing"}, acted, "the sequence should proceed past a missing optional screen")
}

func TestRunProbeSequenceFailsWhenRequiredScreenNeverAppears(t *testing.T) {
	err := RunProbeSequence(context.Background(), probeTick,
		Probe{Name: "password", Find: neverFound},
	)
	require.ErrorContains(t, err, `probe "password"`)
	require.ErrorContains(t, err, "never appeared")
}

func TestRunProbeSequenceEventuallyFinds(t *testing.T) {
	attempts := 0
	err := RunProbeSequence(context.Background(), 5*time.Second,
		Probe{
			Name: "slow screen",
			Find: func(context.Context) (bool, error) {
				attempts++
				return attempts >= 3, nil
			},
		},
	)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRunProbeSequenceSharedBudget(t *testing.T) {
	// The first probe burns the whole shared budget, so the second required
	// probe must fail even though its own Find would eventually succeed.
	start := time.Now()
	err := RunProbeSequence(context.Background(), 2*probeTick,
		Probe{Name: "slow optional", Find: neverFound, Optional: true},
		Probe{Name: "required", Find: neverFound},
	)
	require.ErrorContains(t, err, `probe "required"`)
	require.Less(t, time.Since(start), time.Second, "the shared budget should bound the whole sequence")
}

func TestRunProbeSequenceSurfacesFindErrors(t *testing.T) {
	boom := errors.New("session closed")
	err := RunProbeSequence(context.Background(), time.Second,
		Probe{Name: "email", Find: func(context.Context) (bool, error) { return false, boom }},
	)
	require.ErrorContains(t, err, `probe "email"`)
	require.ErrorIs(t, err, boom)
}

func TestRunProbeSequenceSurfacesActErrors(t *testing.T) {
	boom := errors.New("element detached")
	err := RunProbeSequence(context.Background(), time.Second,
		Probe{Name: "email", Find: foundImmediately, Act: func(context.Context) error { return boom }},
	)
	require.ErrorIs(t, err, boom)
}

func TestRunProbeSequenceHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunProbeSequence(ctx, 5*time.Second,
		Probe{Name: "email", Find: neverFound},
	)
	require.ErrorIs(t, err, context.Canceled)
}
