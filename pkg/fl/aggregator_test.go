package fl_test

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func scalarUpdate(id string, n int64, v float64) fl.Update {
	return fl.Update{ParticipantID: id, NumExamples: n, Parameters: fl.NewParameters(fl.Scalar(v))}
}

func TestFedAvgAggregate(t *testing.T) {
	t.Parallel()

	matrix := func(vals ...float64) fl.Tensor {
		tn, err := fl.NewTensor([]int{2, 2}, vals)
		if err != nil {
			panic(err)
		}

		return tn
	}

	cases := []struct {
		desc     string
		updates  []fl.Update
		expected fl.Parameters
		err      error
	}{
		{
			desc: "weighted mean of two scalars",
			updates: []fl.Update{
				scalarUpdate("a", 100, 2.0),
				scalarUpdate("b", 300, 6.0),
			},
			expected: fl.NewParameters(fl.Scalar(5.0)),
		},
		{
			desc: "single update is returned unchanged",
			updates: []fl.Update{
				{ParticipantID: "a", NumExamples: 7, Parameters: fl.NewParameters(matrix(1, 2, 3, 4))},
			},
			expected: fl.NewParameters(matrix(1, 2, 3, 4)),
		},
		{
			desc: "multiple tensors are averaged independently",
			updates: []fl.Update{
				{ParticipantID: "a", NumExamples: 1, Parameters: fl.NewParameters(matrix(0, 0, 0, 0), fl.Scalar(1))},
				{ParticipantID: "b", NumExamples: 3, Parameters: fl.NewParameters(matrix(4, 4, 8, 8), fl.Scalar(5))},
			},
			expected: fl.NewParameters(matrix(3, 3, 6, 6), fl.Scalar(4)),
		},
		{
			desc:    "no updates",
			updates: nil,
			err:     fl.ErrAggregationEmpty,
		},
		{
			desc: "mismatched tensor count",
			updates: []fl.Update{
				{ParticipantID: "a", NumExamples: 1, Parameters: fl.NewParameters(fl.Scalar(1))},
				{ParticipantID: "b", NumExamples: 1, Parameters: fl.NewParameters(fl.Scalar(1), fl.Scalar(2))},
			},
			err: fl.ErrShapeMismatch,
		},
		{
			desc: "mismatched tensor shape",
			updates: []fl.Update{
				{ParticipantID: "a", NumExamples: 1, Parameters: fl.NewParameters(matrix(1, 2, 3, 4))},
				{ParticipantID: "b", NumExamples: 1, Parameters: fl.NewParameters(fl.Tensor{Shape: []int{4}, Data: []float64{1, 2, 3, 4}})},
			},
			err: fl.ErrShapeMismatch,
		},
		{
			desc: "zero sample count",
			updates: []fl.Update{
				scalarUpdate("a", 0, 1),
			},
			err: fl.ErrInvalidSampleCount,
		},
		{
			desc: "sample count overflow",
			updates: []fl.Update{
				scalarUpdate("a", math.MaxInt64, 1),
				scalarUpdate("b", 1, 1),
			},
			err: fl.ErrOverflow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := fl.NewFedAvgAggregator().Aggregate(tc.updates)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestFedAvgDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	a := scalarUpdate("a", 1, 1)
	b := scalarUpdate("b", 1, 3)
	_, err := fl.NewFedAvgAggregator().Aggregate([]fl.Update{b, a})
	require.NoError(t, err)

	assert.Equal(t, 1.0, a.Parameters.Tensors[0].Data[0])
	assert.Equal(t, 3.0, b.Parameters.Tensors[0].Data[0])
}

func TestMedianAggregate(t *testing.T) {
	t.Parallel()

	updates := []fl.Update{
		scalarUpdate("a", 1, 1),
		scalarUpdate("b", 1000, 2),
		scalarUpdate("c", 1, 100),
	}
	got, err := fl.NewMedianAggregator().Aggregate(updates)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Tensors[0].Data[0])

	got, err = fl.NewMedianAggregator().Aggregate(updates[:2])
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Tensors[0].Data[0])
}

func TestTrimmedMeanAggregate(t *testing.T) {
	t.Parallel()

	updates := []fl.Update{
		scalarUpdate("a", 1, -1000),
		scalarUpdate("b", 1, 2),
		scalarUpdate("c", 1, 4),
		scalarUpdate("d", 1, 1000),
	}
	got, err := fl.NewTrimmedMeanAggregator(0.1).Aggregate(updates)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Tensors[0].Data[0])
}

func TestNewAggregator(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", fl.AlgorithmFedAvg, fl.AlgorithmMedian, fl.AlgorithmTrimmedMean} {
		agg, err := fl.NewAggregator(name)
		require.NoError(t, err, name)
		assert.NotNil(t, agg)
	}

	_, err := fl.NewAggregator("krum")
	assert.ErrorIs(t, err, fl.ErrUnknownAggregator)
}

func updatesGen() *rapid.Generator[[]fl.Update] {
	return rapid.Custom(func(t *rapid.T) []fl.Update {
		n := rapid.IntRange(1, 8).Draw(t, "participants")
		size := rapid.IntRange(1, 4).Draw(t, "size")
		updates := make([]fl.Update, n)
		for i := range updates {
			data := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), size, size).Draw(t, "data")
			updates[i] = fl.Update{
				ParticipantID: fmt.Sprintf("p-%02d", i),
				NumExamples:   rapid.Int64Range(1, 1e6).Draw(t, "examples"),
				Parameters:    fl.NewParameters(fl.Tensor{Shape: []int{size}, Data: data}),
			}
		}

		return updates
	})
}

func TestAggregateOrderIndependent(t *testing.T) {
	aggregators := map[string]fl.Aggregator{
		fl.AlgorithmFedAvg:      fl.NewFedAvgAggregator(),
		fl.AlgorithmMedian:      fl.NewMedianAggregator(),
		fl.AlgorithmTrimmedMean: fl.NewTrimmedMeanAggregator(0.1),
	}

	for name, agg := range aggregators {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				updates := updatesGen().Draw(rt, "updates")
				perm := rapid.Permutation(updates).Draw(rt, "perm")

				want, err := agg.Aggregate(updates)
				if err != nil {
					rt.Fatalf("aggregate: %v", err)
				}
				got, err := agg.Aggregate(perm)
				if err != nil {
					rt.Fatalf("aggregate permuted: %v", err)
				}
				if !reflect.DeepEqual(want, got) {
					rt.Fatalf("result depends on input order: %v != %v", want, got)
				}
			})
		})
	}
}

func TestFedAvgWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		updates := updatesGen().Draw(rt, "updates")
		got, err := fl.NewFedAvgAggregator().Aggregate(updates)
		if err != nil {
			rt.Fatalf("aggregate: %v", err)
		}
		for j, v := range got.Tensors[0].Data {
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, u := range updates {
				lo = math.Min(lo, u.Parameters.Tensors[0].Data[j])
				hi = math.Max(hi, u.Parameters.Tensors[0].Data[j])
			}
			tol := 1e-9 * math.Max(1, math.Max(math.Abs(lo), math.Abs(hi)))
			if v < lo-tol || v > hi+tol {
				rt.Fatalf("element %d = %v outside [%v, %v]", j, v, lo, hi)
			}
		}
	})
}
