// Package api exposes analyses over HTTP: uploads, queries and live progress
// streams under /v2/analysis, plus the operational endpoints.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MrWong99/ispitch/internal/health"
	"github.com/MrWong99/ispitch/internal/notify"
	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/internal/store"
)

// UserHeader carries the authenticated user id, set by the gateway in front
// of the service.
const UserHeader = "X-User-ID"

// Scheduler queues an analysis for background execution.
// [worker.Pool] implements it.
type Scheduler interface {
	Submit(ctx context.Context, req pipeline.Request) error
}

// Uploads persists incoming recordings. [storage.Local] implements it.
type Uploads interface {
	SaveTemporaryFile(filename, contentType string, size int64, r io.Reader) (string, error)
	CleanupTemporaryFile(path string) error
	MaxBytes() int64
}

// Deps are the collaborators of a [Server]. Store, Broker, Uploads and
// Scheduler are required.
type Deps struct {
	Store     store.Store
	Broker    notify.Broker
	Uploads   Uploads
	Scheduler Scheduler

	// Health serves /healthz and /readyz when set.
	Health *health.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// Server is the HTTP front end.
type Server struct {
	deps    Deps
	engine  *gin.Engine
	metrics *observe.Metrics
	now     func() time.Time
	newID   func() string

	idleTimeout    time.Duration
	heartbeat      time.Duration
	originPatterns []string
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records request and stream metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces time.Now for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithIDGenerator replaces uuid.NewString for new analysis ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) { s.newID = fn }
}

// WithStreamIdleTimeout ends a progress stream when no event arrived for d.
func WithStreamIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithOriginPatterns lists the cross-origin hosts allowed to open WebSocket
// streams.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// New builds the router.
func New(deps Deps, opts ...Option) (*Server, error) {
	var errs []error
	if deps.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if deps.Broker == nil {
		errs = append(errs, errors.New("broker is required"))
	}
	if deps.Uploads == nil {
		errs = append(errs, errors.New("uploads is required"))
	}
	if deps.Scheduler == nil {
		errs = append(errs, errors.New("scheduler is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, errors.Join(errors.New("api: invalid dependencies"), err)
	}

	s := &Server{
		deps:        deps,
		now:         time.Now,
		newID:       uuid.NewString,
		idleTimeout: 10 * time.Minute,
		heartbeat:   15 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.engine = gin.New()
	s.engine.Use(recovery(), routeLabel())
	s.routes()
	return s, nil
}

// Handler returns the router wrapped in tracing and request metrics.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.metrics)(s.engine)
}

func (s *Server) routes() {
	r := s.engine

	if s.deps.Health != nil {
		r.GET("/healthz", gin.WrapF(s.deps.Health.Healthz))
		r.GET("/readyz", gin.WrapF(s.deps.Health.Readyz))
	}
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	if s.deps.MCP != nil {
		r.Any("/mcp", gin.WrapH(s.deps.MCP))
	}

	v2 := r.Group("/v2/analysis", requireUser())
	{
		v2.POST("/initiate", maxBody(s.deps.Uploads.MaxBytes()), s.handleInitiate)
		v2.GET("", s.handleList)
		v2.GET("/", s.handleList)
		v2.GET("/stats", s.handleStats)
		v2.GET("/recent", s.handleRecent)
		v2.GET("/:id", s.handleGet)
		v2.GET("/:id/stream", s.handleStream)
		v2.GET("/:id/ws", s.handleWebSocket)
	}
}

// routeLabel hands the matched route template to the observe middleware so
// metrics are not labelled with raw ids.
func routeLabel() gin.HandlerFunc {
	return func(c *gin.Context) {
		if route := c.FullPath(); route != "" {
			observe.SetRoute(c.Request.Context(), route)
		}
		c.Next()
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		observe.Logger(c.Request.Context()).Error("handler panicked", "panic", err, "path", c.Request.URL.Path)
		respondMessage(c, http.StatusInternalServerError, "internal error")
	})
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(UserHeader) == "" {
			respondMessage(c, http.StatusUnauthorized, "missing "+UserHeader+" header")
			c.Abort()
			return
		}
		c.Next()
	}
}

// maxBody caps request bodies at limit plus room for the multipart framing.
func maxBody(limit int64) gin.HandlerFunc {
	const overhead = 1 << 20
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+overhead)
		}
		c.Next()
	}
}

func userID(c *gin.Context) string { return c.GetHeader(UserHeader) }

func respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		observe.Logger(c.Request.Context()).Error("request failed", "path", c.Request.URL.Path, "err", err)
		respondMessage(c, status, http.StatusText(status))
		return
	}
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
