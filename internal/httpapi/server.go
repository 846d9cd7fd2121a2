// Package httpapi exposes the schedule, profile, todo and preference
// operations over HTTP for the browser client, plus a websocket change feed,
// a health probe and the Prometheus endpoint.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"shiftboard/internal/board"
	"shiftboard/internal/metrics"
	"shiftboard/internal/utils"
	"shiftboard/store"
	"shiftboard/store/local"
)

// Preferences is the store-agnostic alias the API serves.
type Preferences = local.Preferences

// Pinger reports remote connectivity for the health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the REST API over a failover store.
type Server struct {
	store   store.Store
	prefs   *local.Store
	logger  *logrus.Logger
	metrics *metrics.Metrics
	hub     *Hub

	gatherer prometheus.Gatherer
	origins  []string
	pinger   Pinger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics attaches request counters and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithCORSOrigins restricts browser access to the given origins. Empty
// allows any origin.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// WithPinger lets the health probe report remote connectivity.
func WithPinger(p Pinger) ServerOption {
	return func(s *Server) { s.pinger = p }
}

// NewServer builds the API server. prefs may be nil when no local store is
// attached; the preference endpoints then return 503.
func NewServer(st store.Store, prefs *local.Store, logger *logrus.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		store:  st,
		prefs:  prefs,
		logger: logger,
		hub:    NewHub(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the websocket hub so the app can push change events into it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestMetrics())

	corsConfig := cors.DefaultConfig()
	if len(s.origins) > 0 {
		corsConfig.AllowOrigins = s.origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/ws", s.handleWebsocket)

	api := router.Group("/api")
	{
		api.GET("/schedules", s.handleListSchedules)
		api.POST("/schedules", s.handleAddSchedule)
		api.DELETE("/schedules/:id", s.handleDeleteSchedule)

		api.GET("/profiles", s.handleListProfiles)
		api.GET("/profiles/:member", s.handleGetProfile)
		api.PUT("/profiles/:member", s.handleSaveProfile)

		api.GET("/todos", s.handleListTodos)
		api.GET("/board", s.handleBoard)
		api.POST("/todos", s.handleAddTodo)
		api.PATCH("/todos/:id", s.handleUpdateTodo)
		api.DELETE("/todos/:id", s.handleDeleteTodo)

		api.GET("/preferences", s.handleGetPreferences)
		api.PUT("/preferences", s.handleSavePreferences)
	}

	return router
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.IncHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}

// handleHealth always answers 200 while the process is serving; a remote
// outage degrades the service to the fallback store rather than killing it.
func (s *Server) handleHealth(c *gin.Context) {
	remote := "unknown"
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			remote = "unreachable"
		} else {
			remote = "ok"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"remote":     remote,
		"ws_clients": s.hub.ClientCount(),
	})
}

/* =================== schedules =================== */

func (s *Server) handleListSchedules(c *gin.Context) {
	startDate := c.Query("start")
	endDate := c.Query("end")
	if startDate == "" || endDate == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end query parameters are required (YYYY-MM-DD)"})
		return
	}
	if err := utils.ValidateDateRange(startDate, endDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := s.store.ListSchedules(c.Request.Context(), startDate, endDate)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []store.ScheduleEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"schedules": entries})
}

type addScheduleRequest struct {
	MemberName string `json:"member_name"`
	Date       string `json:"date"`
	TimeSlot   string `json:"time_slot"`
}

func (s *Server) handleAddSchedule(c *gin.Context) {
	var req addScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := s.store.AddSchedule(c.Request.Context(), req.MemberName, req.Date, store.TimeSlot(req.TimeSlot))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleDeleteSchedule(c *gin.Context) {
	if err := s.store.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

/* =================== profiles =================== */

func (s *Server) handleListProfiles(c *gin.Context) {
	profiles, err := s.store.ListUserProfiles(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if profiles == nil {
		profiles = []store.UserProfile{}
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	profile, err := s.store.GetUserProfile(c.Request.Context(), c.Param("member"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleSaveProfile(c *gin.Context) {
	var profile store.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// The path segment is authoritative for the member name.
	profile.MemberName = c.Param("member")

	stored, err := s.store.SaveUserProfile(c.Request.Context(), profile)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

/* =================== todos =================== */

func (s *Server) handleListTodos(c *gin.Context) {
	todos, err := s.store.ListTodos(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if todos == nil {
		todos = []store.Todo{}
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

func (s *Server) handleBoard(c *gin.Context) {
	todos, err := s.store.ListTodos(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": board.Columns(todos, time.Now())})
}

func (s *Server) handleAddTodo(c *gin.Context) {
	var todo store.Todo
	if err := c.ShouldBindJSON(&todo); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	stored, err := s.store.AddTodo(c.Request.Context(), todo)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleUpdateTodo(c *gin.Context) {
	var patch store.TodoPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	stored, err := s.store.UpdateTodo(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) handleDeleteTodo(c *gin.Context) {
	if err := s.store.DeleteTodo(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

/* =================== preferences =================== */

func (s *Server) handleGetPreferences(c *gin.Context) {
	if s.prefs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "preference store not available"})
		return
	}
	prefs, err := s.prefs.LoadPreferences(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) handleSavePreferences(c *gin.Context) {
	if s.prefs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "preference store not available"})
		return
	}
	var prefs Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.prefs.SavePreferences(c.Request.Context(), prefs); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

/* =================== error mapping =================== */

// writeError maps the store error taxonomy onto HTTP statuses. Conflict
// messages reach the client verbatim so the UI can show them directly.
func (s *Server) writeError(c *gin.Context, err error) {
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Kind {
		case store.KindConflict:
			c.JSON(http.StatusConflict, gin.H{"error": storeErr.Message})
			return
		case store.KindNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": storeErr.Message})
			return
		case store.KindInvalid:
			c.JSON(http.StatusBadRequest, gin.H{"error": storeErr.Message})
			return
		case store.KindSchemaMissing, store.KindRequestFailed:
			s.logger.WithError(err).Error("request failed in both stores")
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
			return
		}
	}
	s.logger.WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
