package server

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/observability"
)

var errBadRequest = errors.New("bad request")

// toStatus maps an engine error to the HTTP status and the stable error code
// returned to clients.
func toStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, observability.Outcome(err)
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden, observability.Outcome(err)
	case errors.Is(err, lending.ErrNotFound):
		return http.StatusNotFound, observability.Outcome(err)
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrParameterOutOfRange):
		return http.StatusBadRequest, observability.Outcome(err)
	case errors.Is(err, lending.ErrNotEligibleForLiquidation),
		errors.Is(err, lending.ErrInvalidState):
		return http.StatusConflict, observability.Outcome(err)
	case errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientPayment),
		errors.Is(err, lending.ErrCollateralBelowMinimum),
		errors.Is(err, lending.ErrArithmeticOverflow),
		errors.Is(err, lending.ErrTransferFailed):
		return http.StatusUnprocessableEntity, observability.Outcome(err)
	default:
		return http.StatusInternalServerError, "internal"
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err. Internal failures are logged and reported without
// detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := toStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "route", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
