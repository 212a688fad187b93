package api

import (
	pkgapi "github.com/absmach/cohort/pkg/api"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

type listRoundsReq struct {
	offset uint64
	limit  uint64
}

func (req listRoundsReq) validate() error {
	if req.limit == 0 || req.limit > pkgapi.MaxLimitSize {
		return pkgerrors.ErrInvalidQuery
	}

	return nil
}

type roundReq struct {
	round int
}

func (req roundReq) validate() error {
	if req.round < 1 {
		return pkgerrors.ErrInvalidQuery
	}

	return nil
}
