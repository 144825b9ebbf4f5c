package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/core"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

var kindStatus = map[core.ErrorKind]int{
	core.KindState:         http.StatusConflict,
	core.KindAuthorization: http.StatusForbidden,
	core.KindResourceLimit: http.StatusUnprocessableEntity,
	core.KindFunding:       http.StatusPaymentRequired,
	core.KindConfiguration: http.StatusPreconditionFailed,
	core.KindValidation:    http.StatusBadRequest,
}

var notFound = []error{
	core.ErrBidNotFound,
	core.ErrPassNotFound,
	core.ErrTokenNotFound,
	core.ErrCategoryNotFound,
	core.ErrCreatureLineNotFound,
	core.ErrCreatureNotFound,
}

// statusOf maps an engine error onto an HTTP status.
func statusOf(err error) int {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	if status, ok := kindStatus[core.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.requestLogger(r).Error("request failed", zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: core.ReasonOf(err), Kind: string(core.KindOf(err))})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(core.KindValidation)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
