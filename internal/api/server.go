package api

import (
	"context"
	"net/http"
	"time"

	"filetree-server/internal/config"
	"filetree-server/internal/filetree"
	"filetree-server/internal/models"
	"filetree-server/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// UserStore resolves accounts for login and /me. LookupUsername returns
// filetree.ErrNotFound for unknown users.
type UserStore interface {
	LookupUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// EventReader serves the per-user event journal.
type EventReader interface {
	GetEventsSince(ctx context.Context, userID int64, sinceID int64) ([]models.Event, error)
}

type Server struct {
	config *config.Config
	nodes  *filetree.Service
	users  UserStore
	events EventReader
	wsHub  *websocket.Hub
	logger *zap.Logger
}

func NewServer(cfg *config.Config, nodes *filetree.Service, users UserStore, events EventReader, wsHub *websocket.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config: cfg,
		nodes:  nodes,
		users:  users,
		events: events,
		wsHub:  wsHub,
		logger: logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ClientTokenHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Get("/ws", s.ServeWsHandler)
	r.Get("/health", s.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/public", s.ListPublicHandler)
	r.Get("/public/{token}", s.GetPublicNodeHandler)
	r.Get("/public/{token}/download", s.DownloadPublicHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)
			r.Get("/me", s.GetCurrentUserHandler)

			r.Get("/nodes", s.ListNodesHandler)
			r.Post("/nodes/folder", s.CreateFolderHandler)
			r.Post("/nodes/file", s.CreateFileHandler)
			r.Post("/nodes/upload", s.UploadFileHandler)
			r.Get("/nodes/{nodeId}", s.GetNodeHandler)
			r.Patch("/nodes/{nodeId}", s.UpdateNodeHandler)
			r.Delete("/nodes/{nodeId}", s.DeleteNodeHandler)
			r.Delete("/nodes/{nodeId}/hard", s.HardDeleteNodeHandler)
			r.Post("/nodes/{nodeId}/restore", s.RestoreNodeHandler)
			r.Post("/nodes/{nodeId}/move", s.MoveNodeHandler)
			r.Get("/nodes/{nodeId}/download", s.DownloadFileHandler)
			r.Get("/nodes/{nodeId}/preview", s.PreviewHandler)

			r.Put("/nodes/{nodeId}/permissions/{username}", s.GrantPermissionHandler)
			r.Delete("/nodes/{nodeId}/permissions/{username}", s.RevokePermissionHandler)
			r.Delete("/nodes/{nodeId}/permissions", s.LeaveSharedNodeHandler)
			r.Put("/nodes/{nodeId}/public", s.SetPublicHandler)

			r.Post("/nodes/{nodeId}/lock", s.AcquireLockHandler)
			r.Delete("/nodes/{nodeId}/lock", s.ReleaseLockHandler)

			r.Get("/trash", s.ListTrashHandler)
			r.Delete("/trash/purge", s.PurgeTrashHandler)

			r.Get("/shared", s.ListSharedHandler)
			r.Get("/search", s.SearchHandler)
			r.Get("/events", s.GetEventsHandler)
		})
	})

	return r
}

// NewHTTPServer wraps the router with the timeouts used in production.
func (s *Server) NewHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
