package api

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"filetree-server/internal/models"

	"github.com/stretchr/testify/require"
)

func TestAPI_SharingFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "pw")
	bob := env.createUser(t, "bob", "pw")

	file := decodeBody[models.Node](t, env.do(t, http.MethodPost, "/api/v1/nodes/file", &alice, CreateFileRequest{Name: "plan.txt", Content: ptr("draft")}))

	rr := env.do(t, http.MethodGet, "/api/v1/nodes/"+file.ID, &bob, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/permissions/bob", &alice, GrantPermissionRequest{Level: models.AccessView})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, models.AccessView, decodeBody[models.Node](t, rr).Permissions["bob"])

	rr = env.do(t, http.MethodGet, "/api/v1/nodes/"+file.ID, &bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPatch, "/api/v1/nodes/"+file.ID, &bob, UpdateNodeRequest{Content: ptr("mine")})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/shared", &bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	shared := decodeBody[[]models.Node](t, rr)
	require.Len(t, shared, 1)
	require.Equal(t, file.ID, shared[0].ID)

	rr = env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/permissions/alice", &bob, GrantPermissionRequest{Level: models.AccessEdit})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/permissions/carol", &alice, GrantPermissionRequest{Level: models.AccessEdit})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/permissions/bob", &alice, GrantPermissionRequest{Level: "manage"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/nodes/"+file.ID+"/permissions", &bob, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/nodes/"+file.ID, &bob, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/nodes/"+file.ID+"/permissions/bob", &alice, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_PublicLinks(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "pw")

	file := decodeBody[models.Node](t, env.do(t, http.MethodPost, "/api/v1/nodes/file", &alice, CreateFileRequest{Name: "flyer.txt", Content: ptr("come along")}))

	rr := env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/public", &alice, SetPublicRequest{Public: true})
	require.Equal(t, http.StatusOK, rr.Code)
	published := decodeBody[models.Node](t, rr)
	require.True(t, published.IsPublic)
	require.NotNil(t, published.PublicLinkID)
	token := *published.PublicLinkID

	rr = env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/public", &alice, SetPublicRequest{Public: true})
	require.Equal(t, token, *decodeBody[models.Node](t, rr).PublicLinkID)

	rr = env.do(t, http.MethodGet, "/public/"+token, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, file.ID, decodeBody[models.Node](t, rr).ID)

	rr = env.do(t, http.MethodGet, "/public/"+token+"/download", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	require.Equal(t, "come along", string(body))

	rr = env.do(t, http.MethodGet, "/public", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decodeBody[[]models.Node](t, rr), 1)

	rr = env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/public", &alice, SetPublicRequest{Public: false})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/public/"+token, nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_EventsJournal(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "pw")
	bob := env.createUser(t, "bob", "pw")

	file := decodeBody[models.Node](t, env.do(t, http.MethodPost, "/api/v1/nodes/file", &alice, CreateFileRequest{Name: "a.txt", Content: ptr("x")}))
	env.do(t, http.MethodPut, "/api/v1/nodes/"+file.ID+"/permissions/bob", &alice, GrantPermissionRequest{Level: models.AccessEdit})

	rr := env.do(t, http.MethodGet, "/api/v1/events", &bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decodeBody[[]models.Event](t, rr)
	require.Len(t, events, 1)
	require.Equal(t, "node_shared_with_you", events[0].EventType)

	var envelope struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	require.Equal(t, "node_shared_with_you", envelope.EventType)

	rr = env.do(t, http.MethodGet, "/api/v1/events?since="+"abc", &bob, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/events?since=0", &alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, decodeBody[[]models.Event](t, rr))
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", decodeBody[HealthResponse](t, rr).Status)

	rr = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "http_requests_total")
}
