package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/absmach/cohort/coordinator"
	pkgapi "github.com/absmach/cohort/pkg/api"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const roundKey = "round"

// MakeHandler returns the read-only HTTP API of a coordinator.
func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(loggingErrorEncoder(logger, pkgapi.EncodeError)),
	}

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		statusEndpoint(svc),
		kithttp.NopRequestDecoder,
		pkgapi.EncodeResponse,
		opts...,
	), "get-status").ServeHTTP)

	mux.Get("/parameters", otelhttp.NewHandler(kithttp.NewServer(
		parametersEndpoint(svc),
		kithttp.NopRequestDecoder,
		pkgapi.EncodeResponse,
		opts...,
	), "get-parameters").ServeHTTP)

	mux.Route("/rounds", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listRoundsEndpoint(svc),
			decodeListRoundsReq,
			pkgapi.EncodeResponse,
			opts...,
		), "list-rounds").ServeHTTP)
		r.Get("/{round}", otelhttp.NewHandler(kithttp.NewServer(
			roundEndpoint(svc),
			decodeRoundReq,
			pkgapi.EncodeResponse,
			opts...,
		), "get-round").ServeHTTP)
	})

	mux.Get("/health", pkgapi.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeListRoundsReq(_ context.Context, r *http.Request) (any, error) {
	offset, err := pkgapi.ReadUintQuery(r, pkgapi.OffsetKey, pkgapi.DefOffset)
	if err != nil {
		return nil, errors.Join(pkgapi.ErrValidation, err)
	}
	limit, err := pkgapi.ReadUintQuery(r, pkgapi.LimitKey, pkgapi.DefLimit)
	if err != nil {
		return nil, errors.Join(pkgapi.ErrValidation, err)
	}

	return listRoundsReq{offset: offset, limit: limit}, nil
}

func decodeRoundReq(_ context.Context, r *http.Request) (any, error) {
	round, err := strconv.Atoi(chi.URLParam(r, roundKey))
	if err != nil {
		return nil, errors.Join(pkgapi.ErrValidation, pkgerrors.ErrInvalidQuery, err)
	}

	return roundReq{round: round}, nil
}

func loggingErrorEncoder(logger *slog.Logger, enc kithttp.ErrorEncoder) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		switch {
		case errors.Is(err, pkgapi.ErrValidation), errors.Is(err, pkgerrors.ErrNotFound):
		default:
			logger.Error("Request failed", slog.Any("error", err))
		}
		enc(ctx, err, w)
	}
}
