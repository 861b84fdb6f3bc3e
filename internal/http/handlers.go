package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/session"
	"ledger/internal/storage"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Read without session rejected",
		log.FieldErrorType, log.ErrorTypeAuth, log.FieldPath, r.URL.Path)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _ := session.FromContext(ctx)

	txs, err := s.svc.List(ctx, sessionID)
	if err != nil {
		s.serviceError(w, r, err, log.OpList)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().Body(txs).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _ := session.FromContext(ctx)

	sum, err := s.svc.Summary(ctx, sessionID)
	if err != nil {
		s.serviceError(w, r, err, log.OpSummarize)
		return
	}
	NewJSONResponse().Body(sum).Write(w)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, _ := session.FromContext(ctx)
	id := mux.Vars(r)["id"]

	t, err := s.svc.Get(ctx, id, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		log.FromContext(ctx).DebugContext(ctx, "Transaction not found",
			log.FieldTransactionID, id, log.FieldErrorType, log.ErrorTypeNotFound)
		if s.notFound == NotFoundStatus {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		NewJSONResponse().Body(nil).Write(w)
		return
	}
	if err != nil {
		s.serviceError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Body(t).Write(w)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, resp := parseCreateRequest(w, r)
	if resp != nil {
		log.FromContext(ctx).InfoContext(ctx, "Create request rejected",
			log.FieldOperation, log.OpValidate, log.FieldErrorType, log.ErrorTypeValidation)
		resp.Write(w)
		return
	}

	// The cookie is only issued once the input is known to be acceptable.
	token, issued := s.sessions.Resolve(w, r)
	in.SessionID = token

	t, err := s.svc.Create(ctx, in)
	if err != nil {
		s.serviceError(w, r, err, log.OpCreate)
		return
	}

	s.slog.LogTransactionCreated(ctx, t.ID, t.Amount.Cents, issued)
	w.WriteHeader(http.StatusCreated)
}

// serviceError maps service errors onto status codes and logs the ones
// that are not the client's fault.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, services.ErrMissingSession):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case isValidationError(err):
		validationFailed(validationDetailFromCore(err)).Write(w)
	default:
		fields := log.NewFields().WithErrorType(log.ErrorTypeDatabase)
		s.slog.LogError(r.Context(), "Transaction operation failed", err, log.ComponentStorage, op, fields)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
