// Package sim is an in-process stand-in for the participants of a federation.
// Every participant owns a partition of a synthetic linear regression problem
// and trains a linear model on it with full-batch gradient descent.
package sim

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
)

const holdoutSamples = 256

var (
	ErrInjected           = errors.New("injected participant failure")
	ErrUnknownParticipant = errors.New("unknown participant")
)

type Config struct {
	Participants int
	Features     int
	MinSamples   int
	MaxSamples   int
	Noise        float64
	Seed         uint64
	LocalEpochs  int
	LearningRate float64
	// FailureRate is the probability of any single fit or evaluate call
	// failing.
	FailureRate float64
	// Failing participants fail every call.
	Failing []string
}

func DefaultConfig() Config {
	return Config{
		Participants: 10,
		Features:     4,
		MinSamples:   50,
		MaxSamples:   200,
		Noise:        0.1,
		Seed:         42,
		LocalEpochs:  5,
		LearningRate: 0.05,
	}
}

var _ participant.Factory = (*Simulation)(nil)

type Simulation struct {
	cfg        Config
	weights    []float64
	bias       float64
	partitions map[string]int
	records    []participant.Record
	failing    map[string]bool
	holdout    dataset
}

func New(cfg Config) (*Simulation, error) {
	switch {
	case cfg.Participants <= 0:
		return nil, errors.New("simulation needs at least one participant")
	case cfg.Features <= 0:
		return nil, errors.New("simulation needs at least one feature")
	case cfg.MinSamples <= 0 || cfg.MaxSamples < cfg.MinSamples:
		return nil, fmt.Errorf("invalid sample range [%d, %d]", cfg.MinSamples, cfg.MaxSamples)
	case cfg.FailureRate < 0 || cfg.FailureRate > 1:
		return nil, fmt.Errorf("invalid failure rate %v", cfg.FailureRate)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	s := &Simulation{
		cfg:        cfg,
		weights:    make([]float64, cfg.Features),
		bias:       rng.NormFloat64(),
		partitions: make(map[string]int, cfg.Participants),
		failing:    make(map[string]bool, len(cfg.Failing)),
	}
	for i := range s.weights {
		s.weights[i] = rng.NormFloat64() * 2
	}
	for i := range cfg.Participants {
		id := fmt.Sprintf("participant-%03d", i)
		s.partitions[id] = i
		s.records = append(s.records, participant.Record{ID: id, Partition: i})
	}
	for _, id := range cfg.Failing {
		s.failing[id] = true
	}
	s.holdout = s.generate(rand.New(rand.NewPCG(cfg.Seed, math.MaxUint64)), holdoutSamples)

	return s, nil
}

func (s *Simulation) Records() []participant.Record {
	out := make([]participant.Record, len(s.records))
	copy(out, s.records)

	return out
}

func (s *Simulation) Registry() (*participant.MemoryRegistry, error) {
	return participant.NewMemoryRegistry(s.records...)
}

// InitialParameters returns an all-zero model.
func (s *Simulation) InitialParameters() fl.Parameters {
	return fl.NewParameters(
		fl.Tensor{Shape: []int{s.cfg.Features}, Data: make([]float64, s.cfg.Features)},
		fl.Tensor{Shape: []int{1}, Data: []float64{0}},
	)
}

// TrueParameters returns the model the data was generated from.
func (s *Simulation) TrueParameters() fl.Parameters {
	w := make([]float64, len(s.weights))
	copy(w, s.weights)

	return fl.NewParameters(
		fl.Tensor{Shape: []int{s.cfg.Features}, Data: w},
		fl.Tensor{Shape: []int{1}, Data: []float64{s.bias}},
	)
}

// Create loads the partition of id. The partition is regenerated on every
// call, so handles share nothing.
func (s *Simulation) Create(_ context.Context, id string) (participant.Client, error) {
	p, ok := s.partitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
	}

	rng := rand.New(rand.NewPCG(s.cfg.Seed, uint64(p)+1))
	n := s.cfg.MinSamples + rng.IntN(s.cfg.MaxSamples-s.cfg.MinSamples+1)

	return &client{
		sim:  s,
		id:   id,
		data: s.generate(rng, n),
	}, nil
}

// Evaluate scores params on a holdout set that belongs to no participant.
func (s *Simulation) Evaluate(_ context.Context, _ int, params fl.Parameters) (*fl.Evaluation, error) {
	w, b, err := s.unpack(params)
	if err != nil {
		return nil, err
	}
	mse, mae := s.holdout.loss(w, b)

	return &fl.Evaluation{
		Loss:        mse,
		Metrics:     fl.Metrics{"mae": mae},
		NumExamples: int64(s.holdout.len()),
	}, nil
}

func (s *Simulation) generate(rng *rand.Rand, n int) dataset {
	d := dataset{x: make([][]float64, n), y: make([]float64, n)}
	for i := range n {
		row := make([]float64, s.cfg.Features)
		y := s.bias
		for j := range row {
			row[j] = rng.NormFloat64()
			y += s.weights[j] * row[j]
		}
		d.x[i] = row
		d.y[i] = y + rng.NormFloat64()*s.cfg.Noise
	}

	return d
}

func (s *Simulation) unpack(params fl.Parameters) ([]float64, float64, error) {
	if err := s.InitialParameters().Conforms(params); err != nil {
		return nil, 0, err
	}

	return params.Tensors[0].Data, params.Tensors[1].Data[0], nil
}

// fails reports whether the call op of id in round is chosen to fail.
func (s *Simulation) fails(id, op string, round int) bool {
	if s.failing[id] {
		return true
	}
	if s.cfg.FailureRate == 0 {
		return false
	}

	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s/%s/%d", id, op, round)
	rng := rand.New(rand.NewPCG(s.cfg.Seed, h.Sum64()))

	return rng.Float64() < s.cfg.FailureRate
}
