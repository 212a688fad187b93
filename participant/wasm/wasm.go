// Package wasm runs participant training code compiled to WebAssembly.
//
// A module implements one call per instantiation: it reads a JSON request from
// stdin, with the operation also passed as its first argument, and writes a
// JSON response to stdout. Each call gets a fresh instance, so no module state
// survives between calls.
package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

const (
	opGetParameters = "get_parameters"
	opFit           = "fit"
	opEvaluate      = "evaluate"
)

var (
	ErrCompile         = errors.New("failed to compile Wasm module")
	ErrInvalidResponse = errors.New("invalid response from Wasm module")
	ErrClosed          = errors.New("participant handle is closed")
)

var _ participant.Factory = (*Factory)(nil)

type request struct {
	Operation     string        `json:"operation"`
	ParticipantID string        `json:"participant_id"`
	Parameters    fl.Parameters `json:"parameters"`
	Config        fl.Config     `json:"config"`
}

// Factory compiles the module once and instantiates it for every call.
type Factory struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	logger   *slog.Logger
}

func NewFactory(ctx context.Context, binary []byte, logger *slog.Logger) (*Factory, error) {
	// Calls past their deadline are interrupted instead of running to the end.
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	// Instantiate WASI, which TinyGo and Rust wasip1 targets need for stdio.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)

		return nil, errors.Join(ErrCompile, err)
	}

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		_ = r.Close(ctx)

		return nil, errors.Join(ErrCompile, err)
	}

	return &Factory{
		runtime:  r,
		compiled: compiled,
		logger:   logger,
	}, nil
}

func (f *Factory) Create(_ context.Context, id string) (participant.Client, error) {
	return &client{factory: f, id: id}, nil
}

// Close releases the compiled module and the runtime.
func (f *Factory) Close(ctx context.Context) error {
	return f.runtime.Close(ctx)
}

type client struct {
	factory *Factory
	id      string
	closed  atomic.Bool
}

func (c *client) GetParameters(ctx context.Context, cfg fl.Config) (fl.Parameters, error) {
	var params fl.Parameters
	if err := c.call(ctx, opGetParameters, fl.Parameters{}, cfg, &params); err != nil {
		return fl.Parameters{}, err
	}

	return params, nil
}

func (c *client) Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.FitRes, error) {
	var res fl.FitRes
	if err := c.call(ctx, opFit, params, cfg, &res); err != nil {
		return fl.FitRes{}, err
	}

	return res, nil
}

func (c *client) Evaluate(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.EvaluateRes, error) {
	var res fl.EvaluateRes
	if err := c.call(ctx, opEvaluate, params, cfg, &res); err != nil {
		return fl.EvaluateRes{}, err
	}

	return res, nil
}

func (c *client) Close() error {
	c.closed.Store(true)

	return nil
}

func (c *client) call(ctx context.Context, op string, params fl.Parameters, cfg fl.Config, out any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	in, err := json.Marshal(request{
		Operation:     op,
		ParticipantID: c.id,
		Parameters:    params,
		Config:        cfg,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs("participant", op).
		WithEnv("PARTICIPANT_ID", c.id).
		WithStdin(bytes.NewReader(in)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := c.factory.runtime.InstantiateModule(ctx, c.factory.compiled, modCfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exit *sys.ExitError
		if !errors.As(err, &exit) || exit.ExitCode() != 0 {
			return fmt.Errorf("%s failed: %w: %s", op, err, strings.TrimSpace(stderr.String()))
		}
	}
	if stderr.Len() > 0 {
		c.factory.logger.Debug("participant module stderr", slog.String("participant_id", c.id), slog.String("operation", op), slog.String("stderr", stderr.String()))
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return errors.Join(ErrInvalidResponse, err)
	}

	return nil
}
