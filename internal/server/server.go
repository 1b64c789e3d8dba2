package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/api"
	"github.com/sjawhar/ghost-wispr-live/internal/history"
	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
	"github.com/sjawhar/ghost-wispr-live/internal/session"
	"github.com/sjawhar/ghost-wispr-live/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// SessionView is the live session model served at /api/state.
type SessionView interface {
	Snapshot() session.Snapshot
	ActiveSession() (string, error)
}

type Connection interface {
	State() transport.State
	Attempt() int
	LastError() error
}

// Feed supplies the decoded live messages relayed on /ws.
type Feed interface {
	SubscribeChan(size int) (<-chan protocol.Message, func())
}

type HistoryStore interface {
	Query(ctx context.Context, q history.Query) ([]history.Entry, error)
	Count(ctx context.Context, search string) (int, error)
}

type SessionControls interface {
	StartSession(ctx context.Context) (api.StartResult, error)
	StopSession(ctx context.Context) error
}

type Deps struct {
	View     SessionView
	Conn     Connection
	Feed     Feed
	History  HistoryStore
	Controls SessionControls
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

type Server struct {
	deps     Deps
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(deps Deps) *Server {
	return &Server{
		deps: deps,
		log:  deps.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.deps.Metrics.Handler().ServeHTTP)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/levels", s.handleLevels)
		r.Get("/session", s.handleSession)
		r.Post("/session/start", s.handleStart)
		r.Post("/session/stop", s.handleStop)
		r.Get("/history", s.handleHistory)
	})

	return r
}

// Serve runs the status API until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msgf("status API at http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
