package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/coordinator/api"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	status  coordinator.Status
	params  *fl.Parameters
	history fl.History
}

func (f fakeService) Status() coordinator.Status {
	return f.status
}

func (f fakeService) Parameters() (fl.Parameters, bool) {
	if f.params == nil {
		return fl.Parameters{}, false
	}

	return *f.params, true
}

func (f fakeService) History() fl.History {
	return f.history
}

func newServer(t *testing.T, svc coordinator.Service) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(api.MakeHandler(svc, logger, "instance-1"))
	t.Cleanup(srv.Close)

	return srv
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))

	return res.StatusCode, body
}

func threeRounds() fl.History {
	return fl.History{
		Initial: &fl.Evaluation{Loss: 9},
		Rounds: []fl.RoundRecord{
			{Round: 1, FitSelected: 2, FitResults: 2, Distributed: &fl.Evaluation{Loss: 3}},
			{Round: 2, FitSelected: 2, FitResults: 1, FitFailures: 1},
			{Round: 3, FitSelected: 2, FitResults: 2, Distributed: &fl.Evaluation{Loss: 1}},
		},
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t, fakeService{})

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pass", body["status"])
	assert.Equal(t, "coordinator", body["service"])
	assert.Equal(t, "instance-1", body["instance_id"])
}

func TestStatus(t *testing.T) {
	srv := newServer(t, fakeService{status: coordinator.Status{
		RunID:     "run-1",
		State:     coordinator.RoundFit,
		Round:     2,
		NumRounds: 5,
	}})

	code, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "round_fit", body["state"])
	assert.EqualValues(t, 2, body["round"])
	assert.EqualValues(t, 5, body["num_rounds"])
}

func TestParameters(t *testing.T) {
	params := fl.NewParameters(fl.Scalar(4))

	cases := []struct {
		desc   string
		svc    fakeService
		status int
	}{
		{
			desc:   "before initialization",
			svc:    fakeService{},
			status: http.StatusNotFound,
		},
		{
			desc:   "after two rounds",
			svc:    fakeService{params: &params, history: fl.History{Rounds: threeRounds().Rounds[:2]}},
			status: http.StatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			srv := newServer(t, tc.svc)
			code, body := get(t, srv.URL+"/parameters")
			assert.Equal(t, tc.status, code)
			if tc.status != http.StatusOK {
				assert.Contains(t, body, "error")

				return
			}
			assert.EqualValues(t, 2, body["round"])
			tensors := body["parameters"].(map[string]any)["tensors"].([]any)
			require.Len(t, tensors, 1)
			assert.Equal(t, []any{4.0}, tensors[0].(map[string]any)["data"])
		})
	}
}

func TestListRounds(t *testing.T) {
	srv := newServer(t, fakeService{history: threeRounds()})

	cases := []struct {
		desc   string
		query  string
		status int
		rounds []float64
	}{
		{
			desc:   "default page",
			status: http.StatusOK,
			rounds: []float64{1, 2, 3},
		},
		{
			desc:   "offset and limit",
			query:  "?offset=1&limit=1",
			status: http.StatusOK,
			rounds: []float64{2},
		},
		{
			desc:   "offset past the end",
			query:  "?offset=10",
			status: http.StatusOK,
			rounds: []float64{},
		},
		{
			desc:   "limit above maximum",
			query:  "?limit=1000",
			status: http.StatusBadRequest,
		},
		{
			desc:   "zero limit",
			query:  "?limit=0",
			status: http.StatusBadRequest,
		},
		{
			desc:   "malformed offset",
			query:  "?offset=abc",
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			code, body := get(t, srv.URL+"/rounds"+tc.query)
			assert.Equal(t, tc.status, code)
			if tc.status != http.StatusOK {
				assert.Contains(t, body, "error")

				return
			}
			assert.EqualValues(t, 3, body["total"])
			assert.EqualValues(t, 9, body["initial"].(map[string]any)["loss"])

			got := []float64{}
			for _, r := range body["rounds"].([]any) {
				got = append(got, r.(map[string]any)["round"].(float64))
			}
			assert.Equal(t, tc.rounds, got)
		})
	}
}

func TestGetRound(t *testing.T) {
	srv := newServer(t, fakeService{history: threeRounds()})

	cases := []struct {
		desc     string
		round    string
		status   int
		failures float64
	}{
		{
			desc:     "existing round",
			round:    "2",
			status:   http.StatusOK,
			failures: 1,
		},
		{
			desc:   "unknown round",
			round:  "7",
			status: http.StatusNotFound,
		},
		{
			desc:   "round zero",
			round:  "0",
			status: http.StatusBadRequest,
		},
		{
			desc:   "not a number",
			round:  "two",
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			code, body := get(t, srv.URL+"/rounds/"+tc.round)
			assert.Equal(t, tc.status, code)
			if tc.status != http.StatusOK {
				assert.Contains(t, body, "error")

				return
			}
			assert.Equal(t, tc.failures, body["fit_failures"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, fakeService{})

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
