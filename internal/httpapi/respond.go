package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDomainError maps the engine's typed errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body so internals never leak.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound   *types.NotFoundError
		forbidden  *types.ForbiddenError
		validation *types.ValidationError
		transition *types.InvalidTransitionError
		conflict   *types.ConflictError
		capacity   *types.CapacityError
		rule       *types.RuleViolationError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &capacity):
		writeError(w, http.StatusConflict, "at_capacity", err.Error())
	case errors.As(err, &rule):
		writeError(w, http.StatusUnprocessableEntity, "rule_violation", err.Error())
	default:
		s.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
