package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sandai/pkbattle/src/app/battles"
	apphistory "github.com/sandai/pkbattle/src/app/history"
	leaderboardsvc "github.com/sandai/pkbattle/src/app/leaderboard"
	"github.com/sandai/pkbattle/src/domain/economy"
	"github.com/sandai/pkbattle/src/domain/shared"
	"github.com/sandai/pkbattle/src/infra/live"
)

type ServerConfig struct {
	Logger             *zap.Logger
	BattleService      *battles.Service
	HistoryService     *apphistory.Service
	LeaderboardService *leaderboardsvc.Service
	Catalog            economy.Catalog
	Ledger             economy.Ledger
	Hub                *live.Hub
	JWTSecret          []byte
	Registry           *prometheus.Registry
}

// Server wires HTTP endpoints to application services with observability instrumentation.
type Server struct {
	cfg            ServerConfig
	router         *mux.Router
	httpMetrics    *prometheus.HistogramVec
	requestCounter *prometheus.CounterVec
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	srv := &Server{cfg: cfg}
	srv.initMetrics()
	srv.buildRouter()
	return srv
}

func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.cfg.Logger)),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(s.router)
}

func (s *Server) initMetrics() {
	s.httpMetrics = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pkbattle",
		Subsystem: "http",
		Name:      "request_latency_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
	s.requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pkbattle",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by route",
	}, []string{"route", "method", "code"})
	s.cfg.Registry.MustRegister(s.httpMetrics, s.requestCounter)
}

func (s *Server) buildRouter() {
	r := mux.NewRouter()
	r.Use(s.correlationMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/battles", s.handleCreateBattle).Methods(http.MethodPost)
	api.HandleFunc("/battles/{id}", s.handleGetBattle).Methods(http.MethodGet)
	api.HandleFunc("/battles/{id}/invites", s.handleInvite).Methods(http.MethodPost)
	api.HandleFunc("/battles/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/battles/{id}/gifts", s.handleSendGift).Methods(http.MethodPost)
	api.HandleFunc("/battles/{id}/gifts", s.handleListGifts).Methods(http.MethodGet)
	api.HandleFunc("/battles/{id}/finish", s.handleForceFinish).Methods(http.MethodPost)
	api.HandleFunc("/battles/{id}/live", s.handleLive).Methods(http.MethodGet)
	api.HandleFunc("/invites/{id}/accept", s.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/invites/{id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{room}/battles", s.handleRoomBattles).Methods(http.MethodGet)
	api.HandleFunc("/users/{user}/history", s.handleUserHistory).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	s.router = r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeDomainError maps the shared error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrExpired):
		return http.StatusGone
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, shared.ErrDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.cfg.Logger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Duration("duration", m.Duration),
			zap.String("request_id", correlationIDFromContext(r.Context())),
		)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := mux.CurrentRoute(r)
		routeName := "unknown"
		if route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				routeName = tmpl
			}
		}
		labels := prometheus.Labels{"route": routeName, "method": r.Method, "code": strconv.Itoa(m.Code)}
		s.httpMetrics.With(labels).Observe(m.Duration.Seconds())
		s.requestCounter.With(labels).Inc()
	})
}
