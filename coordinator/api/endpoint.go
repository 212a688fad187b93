package api

import (
	"context"
	"errors"

	"github.com/absmach/cohort/coordinator"
	pkgapi "github.com/absmach/cohort/pkg/api"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/go-kit/kit/endpoint"
)

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		return statusResponse{Status: svc.Status()}, nil
	}
}

func parametersEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		params, ok := svc.Parameters()
		if !ok {
			return parametersResponse{}, pkgerrors.ErrNotFound
		}

		return parametersResponse{
			Round:      svc.History().Len(),
			Parameters: params,
		}, nil
	}
}

func listRoundsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req, ok := request.(listRoundsReq)
		if !ok {
			return listRoundsResponse{}, errors.Join(pkgapi.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRoundsResponse{}, errors.Join(pkgapi.ErrValidation, err)
		}

		history := svc.History()
		total := uint64(history.Len())
		start := min(req.offset, total)
		end := min(start+req.limit, total)

		return listRoundsResponse{
			Total:   total,
			Offset:  req.offset,
			Limit:   req.limit,
			Initial: history.Initial,
			Rounds:  history.Rounds[start:end],
		}, nil
	}
}

func roundEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req, ok := request.(roundReq)
		if !ok {
			return roundResponse{}, errors.Join(pkgapi.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return roundResponse{}, errors.Join(pkgapi.ErrValidation, err)
		}

		rec, ok := svc.History().Round(req.round)
		if !ok {
			return roundResponse{}, pkgerrors.ErrNotFound
		}

		return roundResponse{RoundRecord: rec}, nil
	}
}
