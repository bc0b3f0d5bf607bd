package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/krshsl/mensetsu/backend/repository"
	ws "github.com/krshsl/mensetsu/backend/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Server holds all server dependencies
type Server struct {
	config *Config
	store  repository.Store

	registry         *prometheus.Registry
	metrics          *Metrics
	rotator          *KeyRotator
	geminiService    *GeminiService
	speechService    *ElevenLabsService
	sessionService   *SessionService
	authService      *AuthService
	authEndpoints    *AuthEndpoints
	sessionEndpoints *SessionEndpoints
	sttEndpoints     *STTEndpoints
	rateLimiter      *RateLimiter
	wsHub            *ws.Hub
	hubCancel        context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(config *Config, store repository.Store) *Server {
	return &Server{
		config: config,
		store:  store,
	}
}

// InitializeServices wires every collaborator. Gemini and speech stay nil
// when their keys are missing, and the session flows fall back to stock
// text.
func (s *Server) InitializeServices() error {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = NewMetrics(s.registry)

	s.rotator = NewKeyRotator(s.config.AI.GeminiAPIKeys)
	var gen TextGenerator
	if s.rotator.Count() > 0 {
		s.geminiService = NewGeminiService(s.rotator, s.config.AI.ModelName, s.config.AI.Timeout, s.metrics)
		gen = s.geminiService
		slog.Info("Gemini service initialized", "model", s.geminiService.Model(), "keys", s.rotator.Count())
	} else {
		slog.Warn("Gemini API key not configured, using default questions")
	}

	var speech SpeechService
	if s.config.Speech.ElevenLabsKey != "" {
		s.speechService = NewElevenLabsService(s.config.Speech, s.metrics)
		speech = s.speechService
		slog.Info("ElevenLabs service initialized", "voice_id", s.speechService.VoiceID())
	} else {
		slog.Warn("ElevenLabs API key not configured, audio disabled")
	}

	authService, err := NewAuthService(s.store, s.config.JWT)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	s.authService = authService
	if s.config.JWT.Secret == "change-me" {
		slog.Warn("JWT secret is the default placeholder, set JWT_SECRET")
	}

	s.rateLimiter = NewRateLimiter(s.config.RateLimit.PerMinute)
	s.sessionService = NewSessionService(s.store, gen, speech, s.rotator, s.metrics)
	s.authEndpoints = NewAuthEndpoints(s.authService, s.rateLimiter)
	s.sessionEndpoints = NewSessionEndpoints(s.sessionService)

	s.wsHub = ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	go s.wsHub.Run(ctx)
	s.sttEndpoints = NewSTTEndpoints(speech, s.wsHub, s.config.WebSocket.AllowedOrigins)

	if s.config.Seed.DemoUser {
		if err := NewDatabaseSeeder(s.store).SeedDatabase(context.Background()); err != nil {
			slog.Error("Failed to seed database", "error", err)
		}
	}
	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(corsMiddleware(s.config.WebSocket.AllowedOrigins))

	r.Get("/health", s.healthHandler)
	r.Get("/health/ai", s.aiHealthHandler)
	r.Handle("/metrics", s.metrics.Handler())

	audioDir := s.config.Speech.AudioDir
	if audioDir == "" {
		audioDir = "static/audio"
	}
	r.Handle(audioURLPrefix+"/*", http.StripPrefix(audioURLPrefix+"/", http.FileServer(http.Dir(audioDir))))

	s.authEndpoints.RegisterRoutes(r)
	s.sttEndpoints.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(s.authService.Middleware)
		s.sessionEndpoints.RegisterRoutes(r)
	})

	return r
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", port, "store", s.store.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	s.Shutdown()

	slog.Info("Server exited")
	return nil
}

// Shutdown stops background workers. The store is closed by its owner.
func (s *Server) Shutdown() {
	if s.hubCancel != nil {
		s.hubCancel()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	if originAllowed(origin, allowedOriginsStr) {
		slog.Info("WebSocket connection accepted", "origin", origin)
		return true
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func originAllowed(origin, allowedOriginsStr string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

// corsMiddleware echoes an allowed Origin back and answers preflight
// requests with 204.
func corsMiddleware(allowedOriginsStr string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(origin, allowedOriginsStr) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "up"

	if err := s.store.Ping(r.Context()); err != nil {
		slog.Warn("Store ping failed", "store", s.store.Name(), "error", err)
		dbStatus = "down"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"store":    s.store.Name(),
	})
}

func (s *Server) aiHealthHandler(w http.ResponseWriter, r *http.Request) {
	gemini := map[string]any{"enabled": s.geminiService != nil, "model": nil, "keys": s.rotator.Count()}
	if s.geminiService != nil {
		gemini["model"] = s.geminiService.Model()
	}

	speech := map[string]any{"enabled": s.speechService != nil, "voice": nil, "activeStreams": s.wsHub.Count()}
	if s.speechService != nil {
		speech["voice"] = s.speechService.VoiceID()
		if count, size, err := s.speechService.cache.Stats(); err == nil {
			speech["cachedPhrases"] = count
			speech["cacheBytes"] = size
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"gemini": gemini,
		"speech": speech,
	})
}
