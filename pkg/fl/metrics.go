package fl

import (
	"cmp"
	"maps"
	"slices"
)

// WeightedMetrics pairs a participant's metrics with the number of examples
// that produced them.
type WeightedMetrics struct {
	NumExamples int64
	Metrics     Metrics
}

// MetricsAggregationFn combines per-participant metrics into a single mapping.
type MetricsAggregationFn func(results []WeightedMetrics) Metrics

// WeightedAverage averages every metric key over the participants that report
// it, weighting each value by its sample count.
func WeightedAverage(results []WeightedMetrics) Metrics {
	sums := make(map[string]float64)
	weights := make(map[string]int64)
	for _, r := range results {
		if r.NumExamples <= 0 {
			continue
		}
		for _, k := range slices.Sorted(maps.Keys(r.Metrics)) {
			sums[k] += r.Metrics[k] * float64(r.NumExamples)
			weights[k] += r.NumExamples
		}
	}

	out := make(Metrics, len(sums))
	for k, s := range sums {
		out[k] = s / float64(weights[k])
	}

	return out
}

// WeightedLoss returns the sample-weighted mean of the evaluation losses.
func WeightedLoss(results []EvaluateResult) (float64, int64, error) {
	if len(results) == 0 {
		return 0, 0, ErrAggregationEmpty
	}

	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b EvaluateResult) int {
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})

	updates := make([]Update, len(ordered))
	for i, r := range ordered {
		updates[i] = Update{ParticipantID: r.ParticipantID, NumExamples: r.NumExamples}
	}
	total, err := TotalExamples(updates)
	if err != nil {
		return 0, 0, err
	}

	sum := 0.0
	for _, r := range ordered {
		sum += r.Loss * float64(r.NumExamples)
	}

	return sum / float64(total), total, nil
}

// FitMetrics extracts the weighted metrics of fit results in participant order.
func FitMetrics(results []FitResult) []WeightedMetrics {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b FitResult) int {
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	out := make([]WeightedMetrics, len(ordered))
	for i, r := range ordered {
		out[i] = WeightedMetrics{NumExamples: r.NumExamples, Metrics: r.Metrics}
	}

	return out
}

// EvaluateMetrics extracts the weighted metrics of evaluation results in
// participant order.
func EvaluateMetrics(results []EvaluateResult) []WeightedMetrics {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b EvaluateResult) int {
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	out := make([]WeightedMetrics, len(ordered))
	for i, r := range ordered {
		out[i] = WeightedMetrics{NumExamples: r.NumExamples, Metrics: r.Metrics}
	}

	return out
}
