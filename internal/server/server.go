package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"qcsync/internal/qc"
	"qcsync/internal/remote"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxBodyBytes     = 8 << 20
)

// ReasonUnknownProduct is the rejection reason for a product outside the catalog.
const ReasonUnknownProduct = "unknown productId"

// Server applies the store's acceptance rules and records accepted entries.
type Server struct {
	ledger  Ledger
	catalog map[string]struct{}
	logger  qc.Logger
}

// New creates a Server. An empty products list accepts any product id.
func New(ledger Ledger, products []string, logger qc.Logger) *Server {
	s := &Server{ledger: ledger, logger: logger}
	if len(products) > 0 {
		s.catalog = make(map[string]struct{}, len(products))
		for _, p := range products {
			s.catalog[p] = struct{}{}
		}
	}
	return s
}

// Accept evaluates each entry in order and returns one result per entry.
// A ledger error fails the whole batch.
func (s *Server) Accept(ctx context.Context, req remote.SyncRequest) ([]qc.Result, error) {
	results := make([]qc.Result, len(req.Entries))
	created := 0
	for i, we := range req.Entries {
		if reason := s.check(we); reason != "" {
			results[i] = qc.Rejected(reason)
			s.logger.Info("entry rejected", "device", req.DeviceID, "key", we.IdempotencyKey, "reason", reason)
			continue
		}
		isNew, err := s.ledger.Record(ctx, req.DeviceID, we.Entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if isNew {
			created++
		}
		results[i] = qc.Accepted()
	}
	s.logger.Info("batch processed", "device", req.DeviceID, "entries", len(req.Entries), "created", created)
	return results, nil
}

func (s *Server) check(we remote.WireEntry) string {
	if err := we.Entry.Validate(); err != nil {
		return err.Error()
	}
	if we.IdempotencyKey != "" && we.IdempotencyKey != we.Entry.IdempotencyKey() {
		return "idempotency key does not match entry"
	}
	if s.catalog != nil {
		if _, ok := s.catalog[we.ProductID]; !ok {
			return ReasonUnknownProduct
		}
	}
	return ""
}

// NewRouter returns the HTTP routes of the sync server.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()

	// Method-scoped routes stay on the root router: a subrouter answers a
	// method mismatch with 404 instead of 405.
	r.HandleFunc("/health", s.healthCheck).Methods("GET")
	r.HandleFunc("/api/qc/sync", s.sync).Methods("POST")
	r.HandleFunc("/api/qc/entries", s.listEntries).Methods("GET")

	return r
}

func (s *Server) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sync(w http.ResponseWriter, req *http.Request) {
	var body remote.SyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.DeviceID == "" {
		respondError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	results, err := s.Accept(req.Context(), body)
	if err != nil {
		s.logger.Error("batch failed", "device", body.DeviceID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not record batch")
		return
	}
	respondJSON(w, http.StatusOK, remote.SyncResponse{Results: results})
}

func (s *Server) listEntries(w http.ResponseWriter, req *http.Request) {
	limit := defaultListLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	entries, err := s.ledger.List(req.Context(), limit)
	if err != nil {
		s.logger.Error("listing entries failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list entries")
		return
	}
	if entries == nil {
		entries = []*LedgerEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
