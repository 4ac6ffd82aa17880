package api

import (
	"net/http"
)

type PurgeTrashResponse struct {
	Removed int `json:"removed" example:"12"`
}

// @Summary      Purge trash
// @Description  Permanently deletes everything in the caller's Recycle Bin. This action cannot be undone.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  PurgeTrashResponse
// @Failure      401  {string}  string "Unauthorized"
// @Failure      500  {object}  ErrorResponse
// @Router       /trash/purge [delete]
func (s *Server) PurgeTrashHandler(w http.ResponseWriter, r *http.Request) {
	removed, err := s.nodes.PurgeTrash(r.Context(), callerFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurgeTrashResponse{Removed: removed})
}

// @Summary      List trash contents
// @Description  Lists the top-level contents of the caller's Recycle Bin.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Param        sort    query     string  false  "name, created_at, modified_at or size"
// @Param        order   query     string  false  "asc or desc"
// @Success      200     {array}   models.Node
// @Failure      401     {string}  string "Unauthorized"
// @Router       /trash [get]
func (s *Server) ListTrashHandler(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeBadRequest(w, "limit and offset must be integers")
		return
	}

	nodes, err := s.nodes.ListTrash(r.Context(), callerFrom(r), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}
