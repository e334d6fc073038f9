package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"marketbot/internal/domain"
	"marketbot/internal/metrics"
)

const (
	apiMaxBodySize      = 1 << 20 // 1MB
	apiDefaultPageSize  = 20
	apiMaxPageSize      = 100
	apiSessionPrefix    = "api_"
	apiShutdownDeadline = 5 * time.Second
)

// API exposes the dialogue over HTTP/JSON:
//
//	POST /api/messages                      one turn, body is a domain.Request
//	GET  /api/sessions/{sessionID}/messages recent turns, newest first
//	GET  /healthz
//	GET  <metrics endpoint>                 when a metrics handler is set
type API struct {
	host        string
	port        int
	apiKey      string
	trustProxy  bool
	processor   domain.MessageProcessor
	store       domain.DialogStore
	metricsPath string
	metrics     http.Handler
	limiter     *Limiter
	turnTimeout time.Duration
	logger      *slog.Logger
	server      *http.Server
}

type APIConfig struct {
	Host        string
	Port        int
	APIKey      string // bearer token required on /api routes when set
	TrustProxy  bool   // honour X-Forwarded-For and X-Real-IP for the client address
	Processor   domain.MessageProcessor
	Store       domain.DialogStore // nil disables the session history route
	MetricsPath string
	Metrics     http.Handler
	Limiter     *Limiter
	TurnTimeout time.Duration
	Logger      *slog.Logger
}

func NewAPI(cfg APIConfig) *API {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &API{
		host:        cfg.Host,
		port:        cfg.Port,
		apiKey:      cfg.APIKey,
		trustProxy:  cfg.TrustProxy,
		processor:   cfg.Processor,
		store:       cfg.Store,
		metricsPath: cfg.MetricsPath,
		metrics:     cfg.Metrics,
		limiter:     cfg.Limiter,
		turnTimeout: cfg.TurnTimeout,
		logger:      cfg.Logger,
	}
}

func (a *API) Name() string { return "api" }

// Handler returns the router. Exposed for tests and embedding.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	if a.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.metrics != nil && a.metricsPath != "" {
		r.Method(http.MethodGet, a.metricsPath, a.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(a.requireKey)
		r.Post("/messages", a.handleMessage)
		if a.store != nil {
			r.Get("/sessions/{sessionID}/messages", a.handleSessionMessages)
		}
	})
	return r
}

// Start serves until ctx is cancelled.
func (a *API) Start(ctx context.Context) error {
	addr := net.JoinHostPort(a.host, strconv.Itoa(a.port))
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.turnTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), apiShutdownDeadline)
		defer cancel()
		a.server.Shutdown(shutdownCtx)
	}()

	a.logger.Info("API channel started", "addr", addr)
	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Stop() error {
	if a.server != nil {
		return a.server.Close()
	}
	return nil
}

func (a *API) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, apiMaxBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if len(body) > apiMaxBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request too large")
		return
	}

	var req domain.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IsText() && strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if !req.IsText() && req.Attachment == nil {
		writeError(w, http.StatusBadRequest, "attachment is required for "+req.MessageType)
		return
	}
	if req.SessionID == "" {
		req.SessionID = apiSessionPrefix + uuid.NewString()
	}

	key := req.MerchantID
	if key == "" {
		key = r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
	}
	if !a.limiter.Allow(key) {
		w.Header().Set("Retry-After", "2")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.turnTimeout)
	defer cancel()
	res := a.processor.Process(ctx, req)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := apiDefaultPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, apiMaxPageSize)
	}

	msgs, err := a.store.RecentMessages(r.Context(), sessionID, limit)
	if err != nil {
		a.logger.Error("list session messages failed", "session", sessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "cannot load messages")
		return
	}
	if msgs == nil {
		msgs = []domain.DialogMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "messages": msgs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
