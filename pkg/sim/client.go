package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/absmach/cohort/pkg/fl"
)

type dataset struct {
	x [][]float64
	y []float64
}

func (d dataset) len() int {
	return len(d.y)
}

func (d dataset) predict(i int, w []float64, b float64) float64 {
	p := b
	for j, v := range d.x[i] {
		p += w[j] * v
	}

	return p
}

// loss returns the mean squared and mean absolute errors of the model.
func (d dataset) loss(w []float64, b float64) (float64, float64) {
	var mse, mae float64
	for i := range d.y {
		e := d.predict(i, w, b) - d.y[i]
		mse += e * e
		mae += math.Abs(e)
	}
	n := float64(d.len())

	return mse / n, mae / n
}

type client struct {
	sim  *Simulation
	id   string
	data dataset
}

func (c *client) GetParameters(context.Context, fl.Config) (fl.Parameters, error) {
	return c.sim.InitialParameters(), nil
}

func (c *client) Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.FitRes, error) {
	round := intValue(cfg, "round", 0)
	if c.sim.fails(c.id, "fit", round) {
		return fl.FitRes{}, fmt.Errorf("%w: fit round %d", ErrInjected, round)
	}

	w, b, err := c.sim.unpack(params)
	if err != nil {
		return fl.FitRes{}, err
	}
	// The incoming slices belong to the caller's copy; train on our own.
	w = append([]float64(nil), w...)

	epochs := intValue(cfg, "local_epochs", c.sim.cfg.LocalEpochs)
	lr := floatValue(cfg, "learning_rate", c.sim.cfg.LearningRate)
	n := float64(c.data.len())
	grad := make([]float64, len(w))
	for range epochs {
		if err := ctx.Err(); err != nil {
			return fl.FitRes{}, err
		}
		clear(grad)
		var gb float64
		for i := range c.data.y {
			e := c.data.predict(i, w, b) - c.data.y[i]
			for j, v := range c.data.x[i] {
				grad[j] += 2 * e * v / n
			}
			gb += 2 * e / n
		}
		for j := range w {
			w[j] -= lr * grad[j]
		}
		b -= lr * gb
	}

	mse, _ := c.data.loss(w, b)

	return fl.FitRes{
		Parameters: fl.NewParameters(
			fl.Tensor{Shape: []int{len(w)}, Data: w},
			fl.Tensor{Shape: []int{1}, Data: []float64{b}},
		),
		NumExamples: int64(c.data.len()),
		Metrics:     fl.Metrics{"train_loss": mse},
	}, nil
}

func (c *client) Evaluate(_ context.Context, params fl.Parameters, cfg fl.Config) (fl.EvaluateRes, error) {
	round := intValue(cfg, "round", 0)
	if c.sim.fails(c.id, "evaluate", round) {
		return fl.EvaluateRes{}, fmt.Errorf("%w: evaluate round %d", ErrInjected, round)
	}

	w, b, err := c.sim.unpack(params)
	if err != nil {
		return fl.EvaluateRes{}, err
	}
	mse, mae := c.data.loss(w, b)

	return fl.EvaluateRes{
		Loss:        mse,
		NumExamples: int64(c.data.len()),
		Metrics:     fl.Metrics{"mae": mae},
	}, nil
}

func (c *client) Close() error {
	c.data = dataset{}

	return nil
}

// intValue reads an integer from cfg. Numbers decoded from JSON or TOML arrive
// as float64 or int64.
func intValue(cfg fl.Config, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func floatValue(cfg fl.Config, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
