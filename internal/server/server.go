package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/prite36/floraseven/internal/auth"
	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/health"
	"github.com/prite36/floraseven/internal/models"
	"github.com/prite36/floraseven/internal/mqtt"
	"github.com/prite36/floraseven/internal/service"
	"github.com/prite36/floraseven/internal/thresholds"
	"github.com/prite36/floraseven/internal/websocket"
)

// Monitor is the service surface exposed over HTTP.
type Monitor interface {
	ComputeStatus(ctx context.Context) (*service.Status, error)
	Thresholds(ctx context.Context) map[health.Parameter]health.Threshold
	UpdateThresholds(ctx context.Context, req thresholds.UpdateRequest) (thresholds.UpdateResult, error)
	AnalyzeImage(ctx context.Context, image []byte) (*service.ImageResult, error)
	LatestImage(ctx context.Context) (string, *models.ImageAnalysis, error)
	Water(ctx context.Context, req service.WaterRequest) (*models.WateringEvent, error)
	CaptureImage(ctx context.Context) error
	ReadNow(ctx context.Context) error
	WateringHistory(ctx context.Context, limit int) ([]models.WateringEvent, error)
}

// NodeTracker reports broker and node liveness.
type NodeTracker interface {
	IsConnected() bool
	NodeStatuses() []mqtt.NodeStatus
	ConnectionEvents(limit int) []mqtt.ConnectionEvent
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Replier answers Slack mentions.
type Replier interface {
	PostReply(channelID, threadTS, text string) bool
}

// Deps are the collaborators behind the routes. Everything but Monitor is
// optional.
type Deps struct {
	Monitor Monitor
	DB      Pinger
	Nodes   NodeTracker
	Hub     *websocket.Hub
	Auth    *auth.Manager
	Slack   Replier
}

// Server holds the handlers.
type Server struct {
	cfg     *config.Config
	monitor Monitor
	db      Pinger
	nodes   NodeTracker
	hub     *websocket.Hub
	auth    *auth.Manager
	slack   Replier
}

// NewServer builds the handler set.
func NewServer(cfg *config.Config, deps Deps) *Server {
	a := deps.Auth
	if a == nil {
		a = auth.NewManager(cfg.Auth)
	}
	return &Server{
		cfg:     cfg,
		monitor: deps.Monitor,
		db:      deps.DB,
		nodes:   deps.Nodes,
		hub:     deps.Hub,
		auth:    a,
		slack:   deps.Slack,
	}
}

// Router wires the routes, middleware and CORS.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)
	r.Post("/slack/events", s.handleSlackEvents)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware(unauthorized))

		r.Get("/status", s.handleStatus)
		r.Get("/settings/thresholds", s.handleGetThresholds)
		r.Post("/settings/thresholds", s.handleUpdateThresholds)
		r.Post("/upload_image", s.handleUploadImage)
		r.Get("/image/latest", s.handleLatestImage)
		r.Post("/command/water", s.handleWater)
		r.Post("/command/capture_image", s.handleCaptureImage)
		r.Post("/command/read_now", s.handleReadNow)
		r.Get("/watering/history", s.handleWateringHistory)
		r.Get("/connection/status", s.handleConnectionStatus)
		r.Get("/connection/events", s.handleConnectionEvents)
		r.Get("/ws", s.handleWS)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
	})
	return c.Handler(r)
}

// New creates a new HTTP server and sets up the routes.
func New(cfg *config.Config, deps Deps) *http.Server {
	log.Printf("[INFO] API Server configured to listen on %s", cfg.Server.Addr)
	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           NewServer(cfg, deps).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
