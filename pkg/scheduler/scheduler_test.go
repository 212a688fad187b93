package scheduler_test

import (
	"fmt"
	"testing"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func registry(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("participant-%02d", i)
	}

	return ids
}

func TestTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc        string
		available   int
		fraction    float64
		minRequired int
		expected    int
	}{
		{desc: "full fraction", available: 10, fraction: 1.0, minRequired: 10, expected: 10},
		{desc: "half fraction", available: 10, fraction: 0.5, minRequired: 5, expected: 5},
		{desc: "minimum dominates", available: 10, fraction: 0.1, minRequired: 4, expected: 4},
		{desc: "round half up", available: 5, fraction: 0.5, minRequired: 0, expected: 3},
		{desc: "round down below half", available: 10, fraction: 0.24, minRequired: 0, expected: 2},
		{desc: "clamped to registry", available: 3, fraction: 0.5, minRequired: 8, expected: 3},
		{desc: "empty selection", available: 10, fraction: 0, minRequired: 0, expected: 0},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, scheduler.Target(tc.available, tc.fraction, tc.minRequired))
		})
	}
}

func TestRandomSelect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc     string
		n        int
		req      scheduler.Request
		expected int
		err      error
	}{
		{
			desc:     "all participants for fit",
			n:        10,
			req:      scheduler.Request{Fraction: 1.0, MinRequired: 10, MinAvailable: 10},
			expected: 10,
		},
		{
			desc:     "half for evaluate",
			n:        10,
			req:      scheduler.Request{Fraction: 0.5, MinRequired: 5, MinAvailable: 10},
			expected: 5,
		},
		{
			desc:     "nothing selected",
			n:        10,
			req:      scheduler.Request{Fraction: 0, MinRequired: 0},
			expected: 0,
		},
		{
			desc: "registry below minimum available",
			n:    4,
			req:  scheduler.Request{Fraction: 1.0, MinRequired: 2, MinAvailable: 5},
			err:  fl.ErrInsufficientParticipants,
		},
		{
			desc: "invalid fraction",
			n:    4,
			req:  scheduler.Request{Fraction: 1.5},
			err:  scheduler.ErrInvalidFraction,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := scheduler.NewRandom(7).Select(registry(tc.n), tc.req)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tc.expected)
		})
	}
}

func TestRandomSelectEveryRound(t *testing.T) {
	t.Parallel()

	sel := scheduler.NewRandom(1)
	req := scheduler.Request{Fraction: 1.0, MinRequired: 10, MinAvailable: 10}
	for range 5 {
		got, err := sel.Select(registry(10), req)
		require.NoError(t, err)
		assert.ElementsMatch(t, registry(10), got)
	}
}

func TestRandomSelectDeterministic(t *testing.T) {
	t.Parallel()

	req := scheduler.Request{Fraction: 0.3}
	a, b := scheduler.NewRandom(42), scheduler.NewRandom(42)
	for range 10 {
		x, err := a.Select(registry(20), req)
		require.NoError(t, err)
		y, err := b.Select(registry(20), req)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestRoundRobinRotates(t *testing.T) {
	t.Parallel()

	sel := scheduler.NewRoundRobin()
	req := scheduler.Request{Fraction: 0.5}
	ids := registry(4)

	first, err := sel.Select(ids, req)
	require.NoError(t, err)
	second, err := sel.Select(ids, req)
	require.NoError(t, err)

	assert.Equal(t, ids[:2], first)
	assert.Equal(t, ids[2:], second)
}

func TestSelectBounds(t *testing.T) {
	selectors := map[string]func() scheduler.Selector{
		"random":      func() scheduler.Selector { return scheduler.NewRandom(3) },
		"round-robin": scheduler.NewRoundRobin,
	}

	for name, mk := range selectors {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				n := rapid.IntRange(0, 50).Draw(rt, "registry")
				req := scheduler.Request{
					Fraction:     rapid.Float64Range(0, 1).Draw(rt, "fraction"),
					MinRequired:  rapid.IntRange(0, 60).Draw(rt, "min_required"),
					MinAvailable: rapid.IntRange(0, 60).Draw(rt, "min_available"),
				}

				got, err := mk().Select(registry(n), req)
				if n < req.MinAvailable {
					if err == nil {
						rt.Fatalf("expected insufficient participants for %d < %d", n, req.MinAvailable)
					}

					return
				}
				if err != nil {
					rt.Fatalf("select: %v", err)
				}
				if len(got) > n {
					rt.Fatalf("selected %d from %d", len(got), n)
				}
				if len(got) < min(req.MinRequired, n) {
					rt.Fatalf("selected %d, need at least %d", len(got), req.MinRequired)
				}
				seen := make(map[string]bool, len(got))
				for _, id := range got {
					if seen[id] {
						rt.Fatalf("duplicate selection %s", id)
					}
					seen[id] = true
				}
			})
		})
	}
}
