package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/session"
)

// NotFoundMode selects how a missing transaction is reported by GET /{id}.
type NotFoundMode string

const (
	// NotFoundNull answers 200 with a JSON null body.
	NotFoundNull NotFoundMode = "null"
	// NotFoundStatus answers 404 with an error body.
	NotFoundStatus NotFoundMode = "status"
)

const maxBodyBytes = 1 << 20

// TransactionService is the subset of the service layer the handlers use.
type TransactionService interface {
	Create(ctx context.Context, in core.NewTransaction) (core.Transaction, error)
	List(ctx context.Context, sessionID string) ([]core.Transaction, error)
	Get(ctx context.Context, id, sessionID string) (core.Transaction, error)
	Summary(ctx context.Context, sessionID string) (core.Summary, error)
	Ping(ctx context.Context) error
	Scoping() bool
}

// Options tune the HTTP surface. The zero value is usable.
type Options struct {
	NotFoundMode       NotFoundMode
	CORSAllowedOrigins []string
	Logger             *log.Logger
}

type Server struct {
	http.Server
	svc      TransactionService
	sessions *session.Resolver
	logger   *log.Logger
	slog     *log.StructuredLogger
	notFound NotFoundMode

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc TransactionService, sessions *session.Resolver, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	if opts.NotFoundMode == "" {
		opts.NotFoundMode = NotFoundNull
	}

	s := &Server{
		svc:      svc,
		sessions: sessions,
		logger:   logger,
		slog:     log.NewStructuredLogger(logger),
		notFound: opts.NotFoundMode,
	}

	s.Server = http.Server{
		Addr:           addr,
		Handler:        s.routes(opts),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleCreate).Methods(http.MethodPost)

	read := func(h http.HandlerFunc) http.Handler {
		if s.svc.Scoping() {
			return s.sessions.Require(s.handleUnauthorized)(h)
		}
		return h
	}
	r.Handle("/", read(s.handleList)).Methods(http.MethodGet)
	// Registered before /{id} so it is never captured as an id.
	r.Handle("/summary", read(s.handleSummary)).Methods(http.MethodGet)
	r.Handle("/{id}", read(s.handleGet)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var h http.Handler = r
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	if len(opts.CORSAllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSAllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
	)(h)
	h = trace.NewMiddleware(extractClientIP, s.logger).Middleware(h)

	return h
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

type recoveryLogger struct {
	logger *log.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from panic", "panic", fmt.Sprint(v...), log.FieldErrorType, log.ErrorTypeInternal)
}
