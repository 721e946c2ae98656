package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ccl"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation   = "validation_failed"
	CodeNotEligible  = "not_eligible"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeDuplicate    = "duplicate"
	CodeTransition   = "invalid_transition"
	CodeInternal     = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// errBadRequest marks malformed input caught in the handler itself.
var errBadRequest = errors.New("bad request")

type badRequest struct {
	msg string
}

func (e badRequest) Error() string { return e.msg }
func (e badRequest) Unwrap() error { return errBadRequest }

// writeServiceError maps a domain error onto a status code and body.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	var (
		verrs      validator.ValidationErrors
		ledgerErr  *ledger.ValidationError
		conflict   *ccl.ConflictError
		transition *ccl.TransitionError
		eligible   *ccl.EligibilityError
		syntaxErr  *json.SyntaxError
	)
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, ErrorResponse{Code: CodeValidation, Error: "invalid request body", Details: fieldErrors(verrs)}
	case errors.As(err, &syntaxErr), errors.Is(err, errBadRequest), errors.Is(err, ccl.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorResponse{Code: CodeValidation, Error: err.Error()}
	case errors.As(err, &ledgerErr):
		return http.StatusBadRequest, ErrorResponse{Code: CodeValidation, Error: err.Error(),
			Details: map[string]string{ledgerErr.Field: ledgerErr.Message}}
	case errors.Is(err, ledger.ErrInvalidTransaction):
		return http.StatusBadRequest, ErrorResponse{Code: CodeValidation, Error: err.Error()}
	case errors.As(err, &eligible):
		return http.StatusBadRequest, ErrorResponse{Code: CodeNotEligible, Error: err.Error(),
			Details: map[string]string{"date": eligible.Date.String(), "reason": eligible.Reason}}
	case errors.Is(err, ccl.ErrNotEligible):
		return http.StatusBadRequest, ErrorResponse{Code: CodeNotEligible, Error: err.Error()}
	case errors.Is(err, ccl.ErrUnauthorized):
		return http.StatusForbidden, ErrorResponse{Code: CodeUnauthorized, Error: err.Error()}
	case errors.Is(err, ccl.ErrNotFound), errors.Is(err, leave.ErrEmployeeNotFound):
		return http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Error: err.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorResponse{Code: CodeConflict, Error: err.Error(),
			Details: map[string]string{"existing_grant_id": conflict.Existing, "date": conflict.Date.String()}}
	case errors.Is(err, ccl.ErrConflict):
		return http.StatusConflict, ErrorResponse{Code: CodeConflict, Error: err.Error()}
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, ErrorResponse{Code: CodeDuplicate, Error: err.Error()}
	case errors.As(err, &transition):
		return http.StatusConflict, ErrorResponse{Code: CodeTransition, Error: err.Error(),
			Details: map[string]string{"from": string(transition.From), "action": transition.Action}}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Error: "internal error"}
	}
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out[fe.Namespace()] = fe.Tag() + "=" + fe.Param()
		} else {
			out[fe.Namespace()] = fe.Tag()
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
