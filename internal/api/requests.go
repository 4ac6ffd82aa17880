package api

import (
	"encoding/json"
	"net/http"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ClientTokenHeader identifies the editor session that holds or requests a lock.
const ClientTokenHeader = "X-Client-Token"

const maxJSONBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type CreateFolderRequest struct {
	Name     string  `json:"name" example:"Documents"`
	ParentID *string `json:"parent_id"`
}

func (req CreateFolderRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&req.ParentID, validation.NilOrNotEmpty),
	)
}

type CreateFileRequest struct {
	Name     string   `json:"name" example:"notes.md"`
	ParentID *string  `json:"parent_id"`
	Content  *string  `json:"content" example:"# Hello"`
	MimeType *string  `json:"mime_type" example:"text/markdown"`
	Tags     []string `json:"tags"`
}

func (req CreateFileRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&req.ParentID, validation.NilOrNotEmpty),
	)
}

type UpdateNodeRequest struct {
	Name     *string   `json:"name"`
	Tags     *[]string `json:"tags"`
	Content  *string   `json:"content"`
	MimeType *string   `json:"mime_type"`
}

func (req UpdateNodeRequest) Validate() error {
	if req.Name == nil && req.Tags == nil && req.Content == nil && req.MimeType == nil {
		return validation.NewError("validation_empty_update", "no update specified")
	}
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.NilOrNotEmpty, validation.Length(1, 255)),
	)
}

func (req UpdateNodeRequest) edit() filetree.NodeEdit {
	return filetree.NodeEdit{Name: req.Name, Tags: req.Tags, Content: req.Content, MimeType: req.MimeType}
}

type MoveNodeRequest struct {
	ParentID *string `json:"parent_id"`
}

func (req MoveNodeRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.ParentID, validation.NilOrNotEmpty),
	)
}

type GrantPermissionRequest struct {
	Level models.AccessLevel `json:"level" example:"edit"`
}

func (req GrantPermissionRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Level, validation.Required, validation.In(models.AccessView, models.AccessEdit)),
	)
}

type SetPublicRequest struct {
	Public bool `json:"public"`
}

type LoginRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"password123"`
}

func (req LoginRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required),
		validation.Field(&req.Password, validation.Required),
	)
}
