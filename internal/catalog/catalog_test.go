package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rjsfud9894/paper-trade/internal/catalog"
	"github.com/rjsfud9894/paper-trade/internal/model"
	"github.com/rjsfud9894/paper-trade/internal/quote"
	"github.com/rjsfud9894/paper-trade/internal/store"
)

type stubProvider struct {
	quote *model.Quote
	err   error
}

func (p *stubProvider) Quote(_ context.Context, _ string) (*model.Quote, error) {
	return p.quote, p.err
}

func newRouter(t *testing.T, quotes quote.Provider) (chi.Router, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	if err := catalog.Seed(context.Background(), ms); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := catalog.NewService(ms, quotes)
	r := chi.NewRouter()
	r.Route("/stocks", func(r chi.Router) {
		r.Get("/", svc.HandleList)
		r.Post("/", svc.HandleCreate)
		r.Get("/{symbol}", svc.HandleGet)
		r.Get("/{symbol}/quote", svc.HandleQuote)
	})
	return r, ms
}

func TestSeed_Idempotent(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := catalog.Seed(ctx, ms); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := catalog.Seed(ctx, ms); err != nil {
		t.Fatalf("second seed should skip existing symbols: %v", err)
	}

	instruments, _ := ms.ListInstruments(ctx)
	if len(instruments) != len(catalog.DefaultInstruments) {
		t.Errorf("expected %d instruments, got %d", len(catalog.DefaultInstruments), len(instruments))
	}
}

func TestList(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stocks", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var instruments []model.Instrument
	json.Unmarshal(w.Body.Bytes(), &instruments)
	if len(instruments) != 5 {
		t.Errorf("expected 5 seeded instruments, got %d", len(instruments))
	}
}

func TestGet(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stocks/AAPL", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var inst model.Instrument
	json.Unmarshal(w.Body.Bytes(), &inst)
	if inst.Symbol != "AAPL" || inst.Name != "Apple" {
		t.Errorf("unexpected instrument %+v", inst)
	}
}

func TestGet_NotFound(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stocks/NOPE", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreate(t *testing.T) {
	router, ms := newRouter(t, nil)

	body, _ := json.Marshal(catalog.CreateInstrumentRequest{Symbol: "nvda", Name: "NVIDIA"})
	req := httptest.NewRequest("POST", "/stocks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Symbol is upcased on the way in.
	inst, err := ms.GetInstrumentBySymbol(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("created instrument not found: %v", err)
	}
	if inst.Name != "NVIDIA" {
		t.Errorf("expected name NVIDIA, got %s", inst.Name)
	}
}

func TestCreate_DuplicateSymbol(t *testing.T) {
	router, _ := newRouter(t, nil)

	body, _ := json.Marshal(catalog.CreateInstrumentRequest{Symbol: "AAPL", Name: "Apple Again"})
	req := httptest.NewRequest("POST", "/stocks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate symbol, got %d", w.Code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	router, _ := newRouter(t, &stubProvider{quote: &model.Quote{
		Symbol: "AAPL", Price: decimal.NewFromInt(150), Currency: "USD",
	}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stocks/AAPL/quote", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var q model.Quote
	json.Unmarshal(w.Body.Bytes(), &q)
	if q.Symbol != "AAPL" || !q.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestQuoteEndpoint_OracleDown(t *testing.T) {
	router, _ := newRouter(t, &stubProvider{err: quote.ErrUnavailable})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stocks/AAPL/quote", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when oracle is down, got %d", w.Code)
	}
}

func TestQuoteEndpoint_UnknownSymbol(t *testing.T) {
	router, _ := newRouter(t, &stubProvider{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/stocks/NOPE/quote", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
