// Package catalog manages the instrument list: the fixed seed set loaded at
// startup, administrative additions, and symbol lookups.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rjsfud9894/paper-trade/internal/model"
	"github.com/rjsfud9894/paper-trade/internal/quote"
	"github.com/rjsfud9894/paper-trade/internal/store"
)

// DefaultInstruments is the seed set loaded at startup.
var DefaultInstruments = []model.Instrument{
	{Symbol: "AAPL", Name: "Apple"},
	{Symbol: "GOOGL", Name: "Google"},
	{Symbol: "TSLA", Name: "Tesla"},
	{Symbol: "MSFT", Name: "Microsoft"},
	{Symbol: "AMZN", Name: "Amazon"},
}

// Seed inserts the default instruments, skipping any symbol already present.
func Seed(ctx context.Context, st store.Store) error {
	for _, inst := range DefaultInstruments {
		inst.ID = uuid.New().String()
		err := st.CreateInstrument(ctx, &inst)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return err
		}
	}
	slog.Info("instrument seed loaded", "count", len(DefaultInstruments))
	return nil
}

// Service exposes the instrument catalog over HTTP.
type Service struct {
	store  store.Store
	quotes quote.Provider // optional; nil disables the quote endpoint
}

// NewService creates a catalog service.
func NewService(st store.Store, quotes quote.Provider) *Service {
	return &Service{store: st, quotes: quotes}
}

// CreateInstrumentRequest is the JSON body for POST /stocks.
type CreateInstrumentRequest struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// HandleList handles GET /stocks.
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.ListInstruments(r.Context())
	if err != nil {
		writeError(w, "failed to list instruments", http.StatusInternalServerError)
		return
	}
	if instruments == nil {
		instruments = []model.Instrument{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(instruments)
}

// HandleGet handles GET /stocks/{symbol}.
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	inst, err := s.store.GetInstrumentBySymbol(r.Context(), symbol)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "instrument not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load instrument", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst)
}

// HandleCreate handles POST /stocks (administrative addition).
func (s *Service) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" || req.Name == "" {
		writeError(w, "symbol and name are required", http.StatusBadRequest)
		return
	}

	inst := &model.Instrument{
		ID:     uuid.New().String(),
		Symbol: req.Symbol,
		Name:   req.Name,
	}

	err := s.store.CreateInstrument(r.Context(), inst)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, "symbol already exists", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, "failed to create instrument", http.StatusInternalServerError)
		return
	}

	slog.Info("instrument added", "symbol", inst.Symbol, "name", inst.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(inst)
}

// HandleQuote handles GET /stocks/{symbol}/quote. The lookup is best-effort:
// oracle failure maps to 502 without affecting any ledger state.
func (s *Service) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if _, err := s.store.GetInstrumentBySymbol(r.Context(), symbol); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "instrument not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load instrument", http.StatusInternalServerError)
		return
	}

	if s.quotes == nil {
		writeError(w, "quote service not configured", http.StatusServiceUnavailable)
		return
	}

	q, err := s.quotes.Quote(r.Context(), symbol)
	if err != nil {
		writeError(w, "quote unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(q)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
