package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"filetree-server/internal/filetree"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error    string `json:"error" example:"forbidden: requires edit on node"`
	LockedBy string `json:"locked_by,omitempty" example:"alice"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, filetree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, filetree.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, filetree.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, filetree.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, filetree.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, filetree.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

// writeError maps a tree error onto its HTTP status. Unclassified errors are logged
// and their text is not returned to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = "internal server error"
	}
	if holder, ok := filetree.LockHolder(err); ok {
		resp.LockedBy = holder
	}
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}
