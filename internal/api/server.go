// Package api exposes the ingestion and reconciliation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ledgerdock/ledgerdock/internal/config"
	"github.com/ledgerdock/ledgerdock/internal/engine"
	"github.com/ledgerdock/ledgerdock/internal/model"
)

// Server routes HTTP requests into the engine.
type Server struct {
	cfg    *config.Config
	svc    *engine.Service
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, svc *engine.Service) *Server {
	return &Server{cfg: cfg, svc: svc}
}

// Handler builds the routed handler with middleware applied. Exposed so tests
// can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobRoute)
	mux.HandleFunc("/transactions/", s.handleTransactionRoute)
	mux.HandleFunc("/reconciliation/match", s.handleMatch)
	mux.HandleFunc("/reconciliation/unmatch", s.handleUnmatch)
	mux.HandleFunc("/reconciliation/candidates", s.handleCandidates)
	mux.HandleFunc("/accounts", s.handleAccounts)
	return corsMiddleware(loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	case http.MethodGet:
		ownerID := r.URL.Query().Get("ownerId")
		if ownerID == "" {
			respondError(w, errValidation("ownerId query parameter is required"))
			return
		}
		jobs, err := s.svc.ListJobs(r.Context(), ownerID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, errValidation("multipart form with a file field is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, errValidation("file could not be read"))
		return
	}

	req := engine.UploadRequest{
		OwnerID:  r.FormValue("ownerId"),
		JobType:  model.JobType(r.FormValue("jobType")),
		Filename: header.Filename,
		Data:     data,
		Force:    r.URL.Query().Get("force") == "true" || r.FormValue("force") == "true",
	}
	if account := r.FormValue("bankAccountId"); account != "" {
		req.BankAccountID = &account
	}

	job, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleJob(w, r, id)
		return
	}
	switch parts[1] {
	case "transactions":
		s.handleJobTransactions(w, r, id)
	case "sync":
		s.handleJobSync(w, r, id)
	case "export":
		if len(parts) < 3 || parts[2] == "" {
			http.NotFound(w, r)
			return
		}
		s.handleJobExport(w, r, id, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		job, err := s.svc.JobStatus(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.svc.DeleteJob(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobTransactions(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("grouped") == "true" {
			groups, err := s.svc.GroupedTransactions(r.Context(), id)
			if err != nil {
				respondError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]any{"groups": groups})
			return
		}
		txs, err := s.svc.ListTransactions(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"transactions": txs})
	case http.MethodDelete:
		documentID := r.URL.Query().Get("documentId")
		deleted, err := s.svc.DeleteGroup(r.Context(), id, documentID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobSync(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := s.svc.JobSyncStatus(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]model.SyncStatus{"syncStatus": status})
}

func (s *Server) handleJobExport(w http.ResponseWriter, r *http.Request, id, target string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := s.svc.ExportJob(r.Context(), id, target)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleTransactionRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/transactions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleTransaction(w, r, id)
		return
	}
	if parts[1] == "confirm" {
		s.handleConfirm(w, r, id)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPatch:
		var upd model.TransactionUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			respondError(w, errValidation("invalid update payload"))
			return
		}
		tx, err := s.svc.UpdateTransaction(r.Context(), id, upd)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, tx)
	case http.MethodDelete:
		if err := s.svc.DeleteTransaction(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tx, err := s.svc.ConfirmTransaction(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

type matchRequest struct {
	TransactionID string `json:"transactionId"`
	DocumentID    string `json:"documentId"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" || req.DocumentID == "" {
		respondError(w, errValidation("transactionId and documentId are required"))
		return
	}
	match, err := s.svc.Match(r.Context(), req.TransactionID, req.DocumentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, match)
}

func (s *Server) handleUnmatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" {
		respondError(w, errValidation("transactionId is required"))
		return
	}
	if err := s.svc.Unmatch(r.Context(), req.TransactionID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	txID := r.URL.Query().Get("transactionId")
	if txID == "" {
		respondError(w, errValidation("transactionId query parameter is required"))
		return
	}
	candidates, err := s.svc.MatchCandidates(r.Context(), txID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var account model.BankAccount
		if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
			respondError(w, errValidation("invalid account payload"))
			return
		}
		created, err := s.svc.CreateAccount(r.Context(), &account)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		ownerID := r.URL.Query().Get("ownerId")
		if ownerID == "" {
			respondError(w, errValidation("ownerId query parameter is required"))
			return
		}
		accounts, err := s.svc.ListAccounts(r.Context(), ownerID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func errValidation(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return model.ErrValidation }

// respondError maps engine errors to status codes. A duplicate upload gets a
// structured 409 payload so clients can offer the force option.
func respondError(w http.ResponseWriter, err error) {
	var dup *engine.DuplicateError
	if errors.As(err, &dup) {
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":         "duplicate upload detected",
			"isDuplicate":   true,
			"matchType":     dup.Candidate.MatchType,
			"existingJobId": dup.Candidate.ExistingJobID,
			"candidate":     dup.Candidate,
		})
		return
	}
	switch {
	case errors.Is(err, model.ErrValidation):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrDuplicate):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
