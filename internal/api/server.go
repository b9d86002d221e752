package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/conntrack"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/scheduler"
	"github.com/hprobot/fleetd/internal/store"
)

// Server wraps the HTTP server and mux for the fleet admin API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// ServerConfig carries the dependencies of the admin API. Tracker and
// Reset may be nil; their routes are then not registered.
type ServerConfig struct {
	ListenAddress string
	Port          int
	AdminToken    string
	MaxBodyBytes  int64

	Maps    []config.MapDef
	Robots  *robot.Service
	Stats   *robot.DailyStats
	Grid    *grid.Repo
	Store   store.Store
	Tracker *conntrack.Tracker
	Reset   *scheduler.DailyReset
}

// NewServer creates a new API server wired with all routes.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/system/info", HandleSystemInfo(cfg.Maps))
	authed.Handle("GET /api/v1/maps", HandleListMaps(cfg.Maps))

	// Robots.
	authed.Handle("GET /api/v1/maps/{map}/robots", HandleListRobots(cfg.Maps, cfg.Robots))
	authed.Handle("GET /api/v1/maps/{map}/robots/{robot}", HandleGetRobot(cfg.Maps, cfg.Robots))
	authed.Handle("DELETE /api/v1/maps/{map}/robots/{robot}", HandleDeleteRobot(cfg.Maps, cfg.Robots))
	authed.Handle("GET /api/v1/maps/{map}/robots/{robot}/daily-stats", HandleDailyStats(cfg.Maps, cfg.Stats))
	authed.Handle("POST /api/v1/maps/{map}/robots/{robot}/actions/release-nodes", HandleReleaseRobotNodes(cfg.Maps, cfg.Grid))

	// Test fixtures.
	authed.Handle("POST /api/v1/maps/{map}/robots/dummy", HandleSeedDummyRobot(cfg.Maps, cfg.Robots, cfg.Stats))
	authed.Handle("POST /api/v1/maps/{map}/robots/dummy/stats/{date}", HandleSeedDummyStats(cfg.Maps, cfg.Stats))

	// Nodes and occupancy.
	authed.Handle("GET /api/v1/maps/{map}/nodes", HandleListNodes(cfg.Maps, cfg.Grid))
	authed.Handle("GET /api/v1/maps/{map}/nodes/occupied", HandleListOccupied(cfg.Maps, cfg.Grid))
	authed.Handle("POST /api/v1/maps/{map}/nodes/{node}/actions/occupy", HandleOccupyNode(cfg.Maps, cfg.Grid))
	authed.Handle("POST /api/v1/maps/{map}/nodes/{node}/actions/release", HandleReleaseNode(cfg.Maps, cfg.Grid))

	// Path planning preview.
	authed.Handle("POST /api/v1/maps/{map}/paths/find", HandleFindPath(cfg.Maps, cfg.Grid))

	// Operator command relay.
	authed.Handle("POST /api/v1/operator/commands", HandleOperatorCommand(cfg.Maps, cfg.Store))

	if cfg.Tracker != nil {
		authed.Handle("GET /api/v1/connections", HandleListConnections(cfg.Tracker))
	}
	if cfg.Reset != nil {
		authed.Handle("POST /api/v1/system/actions/daily-reset", HandleDailyReset(cfg.Reset))
	}

	limitedAuthed := RequestBodyLimitMiddleware(cfg.MaxBodyBytes, authed)
	mux.Handle("/api/", AuthMiddleware(cfg.AdminToken, limitedAuthed))

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
