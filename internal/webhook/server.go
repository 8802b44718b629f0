// Package webhook receives GitHub and GitLab deliveries over HTTP and hands
// them to the notifier.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/google/uuid"

	"gitnotify/internal/metrics"
	"gitnotify/internal/notifier"
	logx "gitnotify/pkg/logx"
)

// Submitter accepts parsed events; *notifier.Service implements it.
type Submitter interface {
	Submit(ctx context.Context, ev notifier.Event) (notifier.Decision, error)
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	Throttle     int64 // max concurrent requests; 0 = unlimited
	AccessLog    bool
}

type Server struct {
	cfg     Config
	sub     Submitter
	metrics *metrics.Metrics
	log     logx.Logger
	version string

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

func New(cfg Config, sub Submitter, m *metrics.Metrics, log logx.Logger, version string) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg,
		sub:     sub,
		metrics: m,
		log:     log,
		version: version,
		router:  routegroup.New(http.NewServeMux()),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("webhook server starting", logx.String("addr", s.cfg.Addr))

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("webhook server shutdown error", logx.Err(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server: %w", err)
	}
	s.log.Info("webhook server stopped")
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("gitnotify", "gitnotify", s.version))
	s.router.Use(rest.Ping)
	s.router.Use(requestID)
	if s.cfg.AccessLog {
		s.router.Use(logger.New(logger.Log(s.log), logger.Prefix("[DEBUG]")).Handler)
	}
	s.router.Use(rest.Recoverer(s.log))
	if s.cfg.Throttle > 0 {
		s.router.Use(rest.Throttle(s.cfg.Throttle))
	}
	s.router.Use(rest.SizeLimit(s.cfg.MaxBodyBytes))
}

func (s *Server) setupRoutes() {
	s.router.Mount("/webhook").Route(func(r *routegroup.Bundle) {
		r.Use(s.metrics.Middleware)
		r.HandleFunc("/github", postOnly(s.log, s.handle(ParseGitHub)))
		r.HandleFunc("/gitlab", postOnly(s.log, s.handle(ParseGitLab)))
	})
	s.router.Handle("GET /metrics", s.metrics.Handler())
}

// postOnly answers anything but POST with 405. The method is checked here
// because the middleware stack turns mux method mismatches into 404.
func postOnly(log logx.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			rest.SendErrorJSON(w, r, log, http.StatusMethodNotAllowed, errors.New(r.Method+" not allowed"), "method not allowed")
			return
		}
		next(w, r)
	}
}

type parseFunc func(h http.Header, body []byte) (notifier.Event, error)

func (s *Server) handle(parse parseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			rest.SendErrorJSON(w, r, s.log, http.StatusBadRequest, err, "can't read body")
			return
		}
		ev, err := parse(r.Header, body)
		if err != nil {
			rest.SendErrorJSON(w, r, s.log, http.StatusBadRequest, err, "can't parse delivery")
			return
		}

		log := s.log.With(
			logx.String("rid", w.Header().Get(requestIDHeader)),
			logx.String("platform", string(ev.Platform)),
			logx.String("event", ev.Name),
			logx.String("action", ev.Action),
			logx.String("delivery", ev.DeliveryID),
		)
		decision, err := s.sub.Submit(r.Context(), ev)
		if err != nil {
			s.metrics.Webhook(string(ev.Platform), "error")
			log.Warn("webhook not accepted", logx.Err(err))
			rest.SendErrorJSON(w, r, s.log, statusFor(err), err, "can't accept delivery")
			return
		}
		s.metrics.Webhook(string(ev.Platform), decision.String())
		log.Debug("webhook accepted", logx.String("decision", decision.String()))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusAccepted)
		rest.RenderJSON(w, rest.JSON{
			"platform": ev.Platform,
			"event":    ev.Name,
			"action":   ev.Action,
			"decision": decision.String(),
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, notifier.ErrQueueFull), errors.Is(err, notifier.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, notifier.ErrDisabled), errors.Is(err, notifier.ErrNoTargets):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

const requestIDHeader = "X-Request-ID"

// requestID keeps a caller-provided X-Request-ID or mints one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
