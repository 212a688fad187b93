package mocks

import (
	"context"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ participant.Client = (*Client)(nil)

// Client is a mock implementation of participant.Client.
type Client struct {
	mock.Mock
}

func (m *Client) GetParameters(ctx context.Context, cfg fl.Config) (fl.Parameters, error) {
	args := m.Called(ctx, cfg)

	return args.Get(0).(fl.Parameters), args.Error(1)
}

func (m *Client) Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.FitRes, error) {
	args := m.Called(ctx, params, cfg)

	return args.Get(0).(fl.FitRes), args.Error(1)
}

func (m *Client) Evaluate(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.EvaluateRes, error) {
	args := m.Called(ctx, params, cfg)

	return args.Get(0).(fl.EvaluateRes), args.Error(1)
}

func (m *Client) Close() error {
	args := m.Called()

	return args.Error(0)
}

// Factory returns the same mock client for every participant.
func Factory(c *Client) participant.Factory {
	return participant.FactoryFunc(func(context.Context, string) (participant.Client, error) {
		return c, nil
	})
}
