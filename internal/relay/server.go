// Package relay implements the proxy relay: thin per-operation HTTP endpoints
// that forward studio requests to the speech provider with the server-held
// credential and pass the provider's status and error message back.
package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Route paths.
const (
	routeHealth       = "/health"
	routeVoices       = "/voices"
	routeCloneVoice   = "/clone-voice"
	routeVoiceName    = "/clone-voice/{voiceId}/name"
	routeVoice        = "/clone-voice/{voiceId}"
	routeTTS          = "/tts"
	routeHistory      = "/history"
	routeHistoryAudio = "/history/{historyItemId}/audio"
	routeHistoryItem  = "/history/{historyItemId}"
)

// URL parameters.
const (
	paramVoiceID       = "voiceId"
	paramHistoryItemID = "historyItemId"
)

const (
	msgServerConfiguration = "Server configuration error"
	msgRateLimited         = "Too many requests"
	logFmtRequest          = "%s %s -> %d (%s)"
	logCredentialMissing   = "Provider credential is not configured; rejecting %s %s"
)

// Upstream is the provider surface the relay forwards to.
type Upstream interface {
	HasCredential() bool
	TextToSpeech(ctx context.Context, voiceID string, req provider.TTSRequest) ([]byte, string, error)
	ListVoices(ctx context.Context) (*provider.VoicesResponse, error)
	AddVoice(ctx context.Context, name string, samples []core.Sample) (string, error)
	EditVoiceName(ctx context.Context, voiceID, name string) error
	DeleteVoice(ctx context.Context, voiceID string) error
	History(ctx context.Context) (*provider.HistoryResponse, error)
	HistoryAudio(ctx context.Context, historyItemID string) ([]byte, string, error)
	DeleteHistoryItem(ctx context.Context, historyItemID string) error
}

// Options tunes the relay router.
type Options struct {
	AllowedOrigins []string
	RateLimitRPM   int
	RateLimitBurst int
	MaxUploadBytes int64
}

// Server holds the relay handlers.
type Server struct {
	upstream  Upstream
	log       *logger.Logger
	limiter   *RateLimiter
	origins   []string
	maxUpload int64
}

// NewServer creates a relay server for the given upstream.
func NewServer(upstream Upstream, log *logger.Logger, opts Options) *Server {
	return &Server{
		upstream:  upstream,
		log:       log,
		limiter:   NewRateLimiter(opts.RateLimitRPM, opts.RateLimitBurst),
		origins:   opts.AllowedOrigins,
		maxUpload: opts.MaxUploadBytes,
	}
}

// Router builds the chi router with middleware and every relay route.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get(routeHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.requireCredential)

		r.Get(routeVoices, s.handleListVoices)
		r.Post(routeCloneVoice, s.handleCloneVoice)
		r.Post(routeVoiceName, s.handleRenameVoice)
		r.Delete(routeVoice, s.handleDeleteVoice)
		r.Post(routeTTS, s.handleTTS)
		r.Get(routeHistory, s.handleHistory)
		r.Get(routeHistoryAudio, s.handleHistoryAudio)
		r.Delete(routeHistoryItem, s.handleDeleteHistoryItem)
	})

	return router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		s.log.Info(logFmtRequest, r.Method, r.URL.Path, wrapped.Status(), time.Since(start))
	})
}

func (s *Server) requireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.upstream.HasCredential() {
			s.log.Error(logCredentialMissing, r.Method, r.URL.Path)
			writeError(w, http.StatusInternalServerError, msgServerConfiguration)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}

		if !s.limiter.Allow(client) {
			s.log.Warn("Rate limited client %s", client)
			writeError(w, http.StatusTooManyRequests, msgRateLimited)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorBody{Error: message})
}
