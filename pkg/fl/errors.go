package fl

import "errors"

var (
	// ErrAggregationEmpty indicates that a phase produced no usable result to aggregate.
	ErrAggregationEmpty = errors.New("no successful results to aggregate")
	// ErrInsufficientParticipants indicates that the registry is smaller than the
	// minimum number of available participants.
	ErrInsufficientParticipants = errors.New("insufficient participants available")
	ErrParticipantFailure       = errors.New("participant failure")
	ErrShapeMismatch            = errors.New("parameter shape mismatch")
	ErrInvalidTensor            = errors.New("tensor data does not match its shape")
	ErrInvalidSampleCount       = errors.New("sample count must be positive")
	ErrOverflow                 = errors.New("sample count overflow during aggregation")
	ErrUnknownAggregator        = errors.New("unknown aggregator")
)
