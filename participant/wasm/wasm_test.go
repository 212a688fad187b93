package wasm_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/absmach/cohort/participant/wasm"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	// A module with no sections: valid, exports nothing, writes nothing.
	emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
)

func TestNewFactory(t *testing.T) {
	cases := []struct {
		desc   string
		binary []byte
		err    error
	}{
		{
			desc:   "empty module",
			binary: emptyModule,
		},
		{
			desc:   "not a wasm binary",
			binary: []byte("#!/bin/sh\necho fit\n"),
			err:    wasm.ErrCompile,
		},
		{
			desc: "nil binary",
			err:  wasm.ErrCompile,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			f, err := wasm.NewFactory(context.Background(), tc.binary, logger)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.NoError(t, f.Close(context.Background()))
		})
	}
}

func TestCallWithoutResponse(t *testing.T) {
	ctx := context.Background()
	f, err := wasm.NewFactory(ctx, emptyModule, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close(ctx) })

	c, err := f.Create(ctx, "org-1")
	require.NoError(t, err)

	params := fl.NewParameters(fl.Tensor{Shape: []int{1}, Data: []float64{1}})
	_, err = c.Fit(ctx, params, fl.Config{"round": 1})
	assert.ErrorIs(t, err, wasm.ErrInvalidResponse)

	require.NoError(t, c.Close())
	_, err = c.Evaluate(ctx, params, fl.Config{})
	assert.ErrorIs(t, err, wasm.ErrClosed)
}
