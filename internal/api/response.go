package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/erazemk/prenos/internal/imaging"
	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidInput           = "invalid_input"
	CodeUnauthenticated        = "unauthenticated"
	CodeForbidden              = "forbidden"
	CodeNotFound               = "not_found"
	CodeUnknownAction          = "unknown_action"
	CodeIllegalTransition      = "illegal_transition"
	CodeUnauthorizedActor      = "unauthorized_actor"
	CodeInsufficientStock      = "insufficient_stock"
	CodeConcurrentModification = "concurrent_modification"
	CodePartialCommit          = "partial_commit"
	CodeConflict               = "conflict"
	CodeInternal               = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, errorBody{Error: message, Code: code})
}

// classify maps a domain error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrPartialCommit):
		return http.StatusInternalServerError, CodePartialCommit
	case errors.Is(err, model.ErrUnknownAction):
		return http.StatusConflict, CodeUnknownAction
	case errors.Is(err, model.ErrIllegalTransition):
		return http.StatusConflict, CodeIllegalTransition
	case errors.Is(err, model.ErrUnauthorizedActor):
		return http.StatusForbidden, CodeUnauthorizedActor
	case errors.Is(err, model.ErrInsufficientStock):
		return http.StatusConflict, CodeInsufficientStock
	case errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict, CodeConcurrentModification
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, imaging.ErrUnsupported):
		return http.StatusBadRequest, CodeInvalidInput
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError reports err to the client. Internal errors are logged and
// their details withheld.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	if code == CodeInternal {
		logging.Error(r.Context(), logger, "request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	jsonError(w, status, code, msg)
}

// decodeJSON decodes a JSON request body into the given target. An empty
// body leaves target untouched when optional is set.
func decodeJSON(r *http.Request, target any, optional bool) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(target)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pathID parses a numeric path value.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional numeric query parameter; absent means zero.
func queryID(r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil && id > 0
}

func badRequest(w http.ResponseWriter, message string) {
	jsonError(w, http.StatusBadRequest, CodeInvalidInput, message)
}
