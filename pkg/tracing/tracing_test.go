package tracing_test

import (
	"context"
	"testing"

	"github.com/absmach/cohort/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	cases := []struct {
		desc     string
		exporter string
		valid    bool
		err      bool
	}{
		{desc: "disabled", exporter: "none"},
		{desc: "default is disabled", exporter: ""},
		{desc: "stdout", exporter: "stdout", valid: true},
		{desc: "unknown exporter", exporter: "jaeger", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			p, err := tracing.NewProvider(context.Background(), "cohort", tracing.Config{Exporter: tc.exporter})
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)

			_, span := p.Tracer().Start(context.Background(), "round")
			assert.Equal(t, tc.valid, span.SpanContext().IsValid())
			span.End()
			assert.NoError(t, p.Shutdown(context.Background()))
		})
	}
}
