package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func optionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}

func parseListOptions(r *http.Request) (filetree.ListOptions, error) {
	q := r.URL.Query()
	opts := filetree.ListOptions{
		Sort:  filetree.SortKey(q.Get("sort")),
		Order: filetree.SortOrder(q.Get("order")),
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			return opts, err
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// @Summary      List nodes
// @Description  Lists the children of a folder, or the caller's root when parent_id is omitted. Folders come first.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        parent_id  query     string  false  "Parent folder ID"
// @Param        sort       query     string  false  "name, created_at, modified_at or size"
// @Param        order      query     string  false  "asc or desc"
// @Param        limit      query     int     false  "Page size"
// @Param        offset     query     int     false  "Page offset"
// @Success      200        {array}   models.Node
// @Failure      400        {object}  ErrorResponse
// @Failure      403        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /nodes [get]
func (s *Server) ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeBadRequest(w, "limit and offset must be integers")
		return
	}

	nodes, err := s.nodes.ListChildren(r.Context(), callerFrom(r), optionalQuery(r, "parent_id"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      Get a node
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200     {object}  models.Node
// @Failure      403     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Router       /nodes/{nodeId} [get]
func (s *Server) GetNodeHandler(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.GetNode(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Create a folder
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateFolderRequest  true  "Folder"
// @Success      201      {object}  models.Node
// @Failure      400      {object}  ErrorResponse
// @Failure      403      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /nodes/folder [post]
func (s *Server) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	node, err := s.nodes.CreateNode(r.Context(), callerFrom(r), filetree.CreateParams{
		ParentID: req.ParentID,
		Kind:     models.KindFolder,
		Name:     req.Name,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// @Summary      Create a text file
// @Description  Creates a File whose content is stored inline. Content is limited to the configured inline size.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateFileRequest  true  "File"
// @Success      201      {object}  models.Node
// @Failure      400      {object}  ErrorResponse
// @Failure      403      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /nodes/file [post]
func (s *Server) CreateFileHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	node, err := s.nodes.CreateNode(r.Context(), callerFrom(r), filetree.CreateParams{
		ParentID: req.ParentID,
		Kind:     models.KindFile,
		Name:     req.Name,
		Content:  req.Content,
		MimeType: req.MimeType,
		Tags:     req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// multipartOverhead is allowed on top of the upload limit for form boundaries and fields.
const multipartOverhead = 1 << 20

// @Summary      Upload a file
// @Description  Uploads a binary file as multipart/form-data. The name defaults to the uploaded file name.
// @Tags         nodes
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file       formData  file    true   "File content"
// @Param        parent_id  formData  string  false  "Parent folder ID"
// @Param        name       formData  string  false  "Node name"
// @Success      201        {object}  models.Node
// @Failure      400        {object}  ErrorResponse
// @Failure      403        {object}  ErrorResponse
// @Failure      404        {object}  ErrorResponse
// @Router       /nodes/upload [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Limits.MaxUploadBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeBadRequest(w, "Error parsing multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "Error retrieving the file")
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	var parentID *string
	if v := r.FormValue("parent_id"); v != "" {
		parentID = &v
	}
	var mimeType *string
	if v := header.Header.Get("Content-Type"); v != "" {
		mimeType = &v
	}

	node, err := s.nodes.UploadFile(r.Context(), callerFrom(r), filetree.UploadParams{
		ParentID: parentID,
		Name:     name,
		MimeType: mimeType,
		Body:     file,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// @Summary      Update a node
// @Description  Renames, retags or edits a node. Name, tag and content changes on a File locked by another session fail with 423.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId          path      string             true   "Node ID"
// @Param        X-Client-Token  header    string             false  "Editor session token"
// @Param        request         body      UpdateNodeRequest  true   "Changes"
// @Success      200             {object}  models.Node
// @Failure      400             {object}  ErrorResponse
// @Failure      403             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Failure      423             {object}  ErrorResponse
// @Router       /nodes/{nodeId} [patch]
func (s *Server) UpdateNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	node, err := s.nodes.UpdateNode(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), r.Header.Get(ClientTokenHeader), req.edit())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type DeleteNodeResponse struct {
	Purged bool `json:"purged"`
}

// @Summary      Delete a node
// @Description  Moves a node into its owner's Recycle Bin. Deleting a node that is already directly in the Recycle Bin removes it permanently.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200     {object}  DeleteNodeResponse
// @Failure      403     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Router       /nodes/{nodeId} [delete]
func (s *Server) DeleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	purged, err := s.nodes.MoveToTrash(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteNodeResponse{Purged: purged})
}

// @Summary      Permanently delete a node
// @Description  Removes a node and all of its descendants without going through the Recycle Bin.
// @Tags         nodes
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node ID"
// @Success      204     {null}    nil "No Content"
// @Failure      403     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Router       /nodes/{nodeId}/hard [delete]
func (s *Server) HardDeleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.nodes.HardDelete(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Restore a node
// @Description  Moves a node out of the Recycle Bin to its owner's root.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200     {object}  models.Node
// @Failure      403     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Router       /nodes/{nodeId}/restore [post]
func (s *Server) RestoreNodeHandler(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.Restore(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Move a node
// @Description  Reparents a node within its owner's tree. A null parent_id moves it to root.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId   path      string           true  "Node ID"
// @Param        request  body      MoveNodeRequest  true  "Target"
// @Success      200      {object}  models.Node
// @Failure      400      {object}  ErrorResponse
// @Failure      403      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /nodes/{nodeId}/move [post]
func (s *Server) MoveNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req MoveNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	node, err := s.nodes.MoveNode(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"), req.ParentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) streamContent(w http.ResponseWriter, r *http.Request, node *models.Node, body io.ReadCloser) {
	defer body.Close()

	contentType := "application/octet-stream"
	if node.MimeType != nil && *node.MimeType != "" {
		contentType = *node.MimeType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": node.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(node.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("content stream interrupted", zap.String("node_id", node.ID), zap.Error(err))
	}
}

// @Summary      Download a file
// @Tags         nodes
// @Produce      octet-stream
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200     {file}    file
// @Failure      400     {object}  ErrorResponse
// @Failure      403     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Router       /nodes/{nodeId}/download [get]
func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	node, body, err := s.nodes.OpenContent(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamContent(w, r, node, body)
}

type PreviewResponse struct {
	Content string `json:"content"`
}

// @Summary      Preview a text file
// @Description  Returns the text of .txt, .md, .json, .js, .html and .css files. HTML is sanitized.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node ID"
// @Success      200     {object}  PreviewResponse
// @Failure      403     {object}  ErrorResponse
// @Failure      404     {object}  ErrorResponse
// @Failure      415     {object}  ErrorResponse
// @Router       /nodes/{nodeId}/preview [get]
func (s *Server) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	text, err := s.nodes.Preview(r.Context(), callerFrom(r), chi.URLParam(r, "nodeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Content: text})
}

// @Summary      Search nodes
// @Description  Matches names and tags case-insensitively across nodes the caller owns, was granted, or that are public.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        q    query     string  true  "Search text"
// @Success      200  {array}   models.Node
// @Failure      400  {object}  ErrorResponse
// @Router       /search [get]
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.nodes.Search(r.Context(), callerFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}
