package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// @Summary      Grant access
// @Description  Grants view or edit on a node to another user. Re-granting replaces the previous level.
// @Tags         sharing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId    path      string                  true  "Node ID"
// @Param        username  path      string                  true  "Grantee"
// @Param        request   body      GrantPermissionRequest  true  "Access level"
// @Success      200       {object}  models.Node
// @Failure      400       {object}  ErrorResponse
// @Failure      403       {object}  ErrorResponse
// @Failure      404       {object}  ErrorResponse
// @Router       /nodes/{nodeId}/permissions/{username} [put]
func (s *Server) GrantPermissionHandler(w http.ResponseWriter, r *http.Request) {
	var req GrantPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	node, err := s.nodes.GrantPermission(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), chi.URLParam(r, "username"), req.Level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Revoke access
// @Tags         sharing
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId    path      string  true  "Node ID"
// @Param        username  path      string  true  "Grantee"
// @Success      200       {object}  models.Node
// @Failure      403       {object}  ErrorResponse
// @Failure      404       {object}  ErrorResponse
// @Router       /nodes/{nodeId}/permissions/{username} [delete]
func (s *Server) RevokePermissionHandler(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.RevokePermission(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), chi.URLParam(r, "username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Leave a shared node
// @Description  Removes the caller's own grant on a node shared with them.
// @Tags         sharing
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node ID"
// @Success      204     {null}    nil "No Content"
// @Failure      404     {object}  ErrorResponse
// @Router       /nodes/{nodeId}/permissions [delete]
func (s *Server) LeaveSharedNodeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.nodes.RevokeOwnPermission(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Publish or unpublish
// @Description  Toggles public visibility. Publishing creates a public link token that stays stable while the node is public.
// @Tags         sharing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId   path      string            true  "Node ID"
// @Param        request  body      SetPublicRequest  true  "Visibility"
// @Success      200      {object}  models.Node
// @Failure      403      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /nodes/{nodeId}/public [put]
func (s *Server) SetPublicHandler(w http.ResponseWriter, r *http.Request) {
	var req SetPublicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	node, err := s.nodes.SetPublic(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), req.Public)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Shared with me
// @Description  Lists nodes other users have granted to the caller.
// @Tags         sharing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.Node
// @Router       /shared [get]
func (s *Server) ListSharedHandler(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.nodes.ListShared(r.Context(), callerFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      List public nodes
// @Tags         public
// @Produce      json
// @Success      200  {array}   models.Node
// @Router       /public [get]
func (s *Server) ListPublicHandler(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.nodes.ListPublic(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      Resolve a public link
// @Tags         public
// @Produce      json
// @Param        token  path      string  true  "Public link token"
// @Success      200    {object}  models.Node
// @Failure      404    {object}  ErrorResponse
// @Router       /public/{token} [get]
func (s *Server) GetPublicNodeHandler(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.ResolvePublic(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Download through a public link
// @Tags         public
// @Produce      octet-stream
// @Param        token  path      string  true  "Public link token"
// @Success      200    {file}    file
// @Failure      404    {object}  ErrorResponse
// @Router       /public/{token}/download [get]
func (s *Server) DownloadPublicHandler(w http.ResponseWriter, r *http.Request) {
	node, body, err := s.nodes.OpenPublic(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamContent(w, r, node, body)
}
