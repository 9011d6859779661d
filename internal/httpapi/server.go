package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/gateway"
	"pagechat/internal/interpreter"
	"pagechat/internal/metrics"
	"pagechat/internal/settings"
)

// LLM is the gateway as seen by the handlers.
type LLM interface {
	interpreter.Interpreter
	Send(ctx context.Context, req gateway.Request) (string, error)
}

// Limiter gates LLM calls per client.
type Limiter interface {
	Allow(ctx context.Context, scope, client string, now time.Time) (bool, int64, time.Time, error)
}

type Config struct {
	Settings    *settings.Manager
	LLM         LLM
	Records     chat.RecordStore
	Filters     interpreter.FilterApplier
	Limiter     Limiter
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
	HealthPath  string
	MetricsPath string
	Timeout     time.Duration
	MaxPages    int
	PageIdleTTL time.Duration
	Now         func() time.Time
}

type Server struct {
	settings *settings.Manager
	llm      LLM
	filters  interpreter.FilterApplier
	limiter  Limiter
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	pages    *pages
	now      func() time.Time
	cfg      Config
}

func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.Records == nil {
		cfg.Records = chat.NewMemoryRecords()
	}
	s := &Server{
		settings: cfg.Settings,
		llm:      cfg.LLM,
		filters:  cfg.Filters,
		limiter:  cfg.Limiter,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		cfg:      cfg,
	}
	s.pages = newPages(pagesConfig{
		Records:  cfg.Records,
		LLM:      cfg.LLM,
		Filters:  cfg.Filters,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
		Now:      cfg.Now,
		MaxPages: cfg.MaxPages,
		IdleTTL:  cfg.PageIdleTTL,
	})
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get(s.cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(s.cfg.MetricsPath, promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings/models", s.handleListModels)
		r.Put("/settings/interpreter-model", s.handleSetInterpreterModel)

		r.Post("/interpreter/variables", s.handlePrepare)
		r.Get("/interpreter/state", s.handleInterpreterState)
		r.With(s.rateLimit("interpreter")).Post("/interpreter/run", s.handleRun)

		r.Get("/chats", s.handleGetChats)
		r.Post("/chats/context", s.handleChatContext)
		r.With(s.rateLimit("chat")).Post("/chats/messages", s.handleSendMessage)
		r.Post("/chats/new", s.handleNewChat)
		r.Put("/chats/active", s.handleSwitchChat)
		r.Delete("/chats/{sessionID}", s.handleDeleteChat)

		r.Post("/notes/uri", s.handleNoteURI)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) rateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := r.RemoteAddr
			if host, _, err := net.SplitHostPort(client); err == nil {
				client = host
			}
			allowed, used, resetAt, err := s.limiter.Allow(r.Context(), scope, client, s.now())
			if err != nil {
				s.logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				s.metrics.RateLimited.Inc()
				retry := int(time.Until(resetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				s.logger.Debug().Str("client", client).Int64("used", used).Msg("rate limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// defaultModel picks the interpreter model when a request does not name one.
func (s *Server) defaultModel(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	mc, err := s.settings.SelectInterpreterModel()
	if err != nil {
		return "", err
	}
	return mc.ID, nil
}
