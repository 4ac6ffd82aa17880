package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// @Summary      Acquire an edit lock
// @Description  Locks a File for the editor session named by X-Client-Token. Re-acquiring from the same session succeeds.
// @Tags         locks
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId          path      string  true  "Node ID"
// @Param        X-Client-Token  header    string  true  "Editor session token"
// @Success      200             {object}  models.Node
// @Failure      400             {object}  ErrorResponse
// @Failure      403             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Failure      423             {object}  ErrorResponse
// @Router       /nodes/{nodeId}/lock [post]
func (s *Server) AcquireLockHandler(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.AcquireLock(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), r.Header.Get(ClientTokenHeader))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Release an edit lock
// @Description  Releases the lock held by the caller's editor session. Releasing an unlocked File succeeds.
// @Tags         locks
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId          path      string  true  "Node ID"
// @Param        X-Client-Token  header    string  true  "Editor session token"
// @Success      200             {object}  models.Node
// @Failure      403             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /nodes/{nodeId}/lock [delete]
func (s *Server) ReleaseLockHandler(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.ReleaseLock(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), r.Header.Get(ClientTokenHeader))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}
