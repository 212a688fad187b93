package api

import (
	"net/http"

	"github.com/absmach/cohort/coordinator"
	pkgapi "github.com/absmach/cohort/pkg/api"
	"github.com/absmach/cohort/pkg/fl"
)

var (
	_ pkgapi.Response = (*statusResponse)(nil)
	_ pkgapi.Response = (*parametersResponse)(nil)
	_ pkgapi.Response = (*listRoundsResponse)(nil)
	_ pkgapi.Response = (*roundResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type parametersResponse struct {
	Round      int           `json:"round"`
	Parameters fl.Parameters `json:"parameters"`
}

func (p parametersResponse) Code() int {
	return http.StatusOK
}

func (p parametersResponse) Headers() map[string]string {
	return map[string]string{}
}

func (p parametersResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	Total   uint64           `json:"total"`
	Offset  uint64           `json:"offset"`
	Limit   uint64           `json:"limit"`
	Initial *fl.Evaluation   `json:"initial,omitempty"`
	Rounds  []fl.RoundRecord `json:"rounds"`
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.RoundRecord
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}
