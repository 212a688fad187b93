package fl

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sort"
)

const (
	AlgorithmFedAvg      = "fedavg"
	AlgorithmMedian      = "median"
	AlgorithmTrimmedMean = "trimmed_mean"

	defaultTrimRatio = 0.1
)

// Update is a single participant's contribution to a fit aggregation.
type Update struct {
	ParticipantID string
	Parameters    Parameters
	NumExamples   int64
}

type Aggregator interface {
	Aggregate(updates []Update) (Parameters, error)
}

// NewAggregator returns the aggregator registered under name.
func NewAggregator(name string) (Aggregator, error) {
	switch name {
	case AlgorithmFedAvg, "":
		return NewFedAvgAggregator(), nil
	case AlgorithmMedian:
		return NewMedianAggregator(), nil
	case AlgorithmTrimmedMean:
		return NewTrimmedMeanAggregator(defaultTrimRatio), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAggregator, name)
	}
}

// UpdatesFromResults converts fit results into aggregation updates.
func UpdatesFromResults(results []FitResult) []Update {
	updates := make([]Update, len(results))
	for i, r := range results {
		updates[i] = Update{
			ParticipantID: r.ParticipantID,
			Parameters:    r.Parameters,
			NumExamples:   r.NumExamples,
		}
	}

	return updates
}

type fedAvgAggregator struct{}

// NewFedAvgAggregator returns an aggregator computing the sample-weighted mean
// of every tensor element.
func NewFedAvgAggregator() Aggregator {
	return &fedAvgAggregator{}
}

func (f *fedAvgAggregator) Aggregate(updates []Update) (Parameters, error) {
	ordered, err := prepare(updates)
	if err != nil {
		return Parameters{}, err
	}

	total, err := TotalExamples(ordered)
	if err != nil {
		return Parameters{}, err
	}

	aggregated := ordered[0].Parameters.zeros()
	for _, u := range ordered {
		weight := float64(u.NumExamples)
		for i, t := range u.Parameters.Tensors {
			dst := aggregated.Tensors[i].Data
			for j, v := range t.Data {
				dst[j] += v * weight
			}
		}
	}

	norm := float64(total)
	for i := range aggregated.Tensors {
		for j := range aggregated.Tensors[i].Data {
			aggregated.Tensors[i].Data[j] /= norm
		}
	}

	return aggregated, nil
}

type medianAggregator struct{}

// NewMedianAggregator returns a coordinate-wise median aggregator. Sample counts
// are validated but do not weight the result.
func NewMedianAggregator() Aggregator {
	return &medianAggregator{}
}

func (m *medianAggregator) Aggregate(updates []Update) (Parameters, error) {
	ordered, err := prepare(updates)
	if err != nil {
		return Parameters{}, err
	}
	if _, err := TotalExamples(ordered); err != nil {
		return Parameters{}, err
	}

	return coordinateWise(ordered, func(values []float64) float64 {
		n := len(values)
		if n%2 == 1 {
			return values[n/2]
		}

		return (values[n/2-1] + values[n/2]) / 2
	}), nil
}

type trimmedMeanAggregator struct {
	ratio float64
}

// NewTrimmedMeanAggregator drops the ratio share of lowest and highest values
// per coordinate before averaging. At least one value is trimmed from each end
// once three or more updates are present.
func NewTrimmedMeanAggregator(ratio float64) Aggregator {
	if ratio < 0 || ratio >= 0.5 {
		ratio = defaultTrimRatio
	}

	return &trimmedMeanAggregator{ratio: ratio}
}

func (tm *trimmedMeanAggregator) Aggregate(updates []Update) (Parameters, error) {
	ordered, err := prepare(updates)
	if err != nil {
		return Parameters{}, err
	}
	if _, err := TotalExamples(ordered); err != nil {
		return Parameters{}, err
	}

	trim := 0
	if len(ordered) >= 3 {
		trim = max(int(float64(len(ordered))*tm.ratio), 1)
	}

	return coordinateWise(ordered, func(values []float64) float64 {
		kept := values[trim : len(values)-trim]
		sum := 0.0
		for _, v := range kept {
			sum += v
		}

		return sum / float64(len(kept))
	}), nil
}

// TotalExamples sums the sample counts of updates, rejecting non-positive
// counts and overflow.
func TotalExamples(updates []Update) (int64, error) {
	var total int64
	for _, u := range updates {
		if u.NumExamples <= 0 {
			return 0, fmt.Errorf("%w: participant %s reported %d", ErrInvalidSampleCount, u.ParticipantID, u.NumExamples)
		}
		if total > math.MaxInt64-u.NumExamples {
			return 0, ErrOverflow
		}
		total += u.NumExamples
	}

	return total, nil
}

// prepare validates updates and returns them ordered by participant ID so the
// floating point reduction does not depend on arrival order.
func prepare(updates []Update) ([]Update, error) {
	if len(updates) == 0 {
		return nil, ErrAggregationEmpty
	}

	ordered := slices.Clone(updates)
	slices.SortStableFunc(ordered, func(a, b Update) int {
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})

	ref := ordered[0].Parameters
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("participant %s: %w", ordered[0].ParticipantID, err)
	}
	for _, u := range ordered[1:] {
		if err := ref.Conforms(u.Parameters); err != nil {
			return nil, fmt.Errorf("participant %s: %w", u.ParticipantID, err)
		}
	}

	return ordered, nil
}

func coordinateWise(updates []Update, reduce func(sorted []float64) float64) Parameters {
	out := updates[0].Parameters.zeros()
	values := make([]float64, len(updates))
	for i := range out.Tensors {
		for j := range out.Tensors[i].Data {
			for k, u := range updates {
				values[k] = u.Parameters.Tensors[i].Data[j]
			}
			sort.Float64s(values)
			out.Tensors[i].Data[j] = reduce(values)
		}
	}

	return out
}
