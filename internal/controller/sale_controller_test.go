package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/config"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettler struct {
	mu       sync.Mutex
	requests []domainSale.Request
	settle   func(req domainSale.Request) (domainSale.Outcome, error)
}

func (s *stubSettler) Settle(_ context.Context, req domainSale.Request) (domainSale.Outcome, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.settle(req)
}

type stubInjector struct {
	injected int
}

func (s *stubInjector) Inject(n int) { s.injected += n }

func newTestRouter(engine SaleSettler, pulses PulseInjector, checks ...ReadinessCheck) http.Handler {
	deps := RouterDeps{
		Engine:      engine,
		Readiness:   checks,
		Metrics:     observability.NewMetrics("test", prometheus.NewRegistry()),
		Logger:      zerolog.Nop(),
		ServiceName: "kioskpay-test",
		CORSConfig:  config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit:   100,
	}
	if pulses != nil {
		deps.Pulses = pulses
	}
	return NewRouter(deps)
}

func TestSaleController_Create(t *testing.T) {
	engine := &stubSettler{settle: func(req domainSale.Request) (domainSale.Outcome, error) {
		return domainSale.Outcome{
			SaleID:      req.ID,
			Method:      req.Method,
			AmountCents: 250,
			PayerName:   "Jane Doe",
			Duration:    42 * time.Second,
		}, nil
	}}
	router := newTestRouter(engine, nil)

	body := `{"flavors":["vanilla","chocolate"],"scoops":2,"price":250,"payment_option":1}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, engine.requests, 1)
	req := engine.requests[0]
	assert.Equal(t, []string{"vanilla", "chocolate"}, req.Flavors)
	assert.Equal(t, 2, req.Scoops)
	assert.Equal(t, int64(250), req.PriceCents)
	assert.Equal(t, domainSale.MethodElectronic, req.Method)

	var resp SaleResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, req.ID.String(), resp.SaleID)
	assert.Equal(t, int64(250), resp.Amount)
	assert.Equal(t, "Jane Doe", resp.PayerName)
	assert.Empty(t, resp.Message)
	assert.Equal(t, int64(42000), resp.DurationMS)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestSaleController_UnknownOptionIsSettledNotRejected(t *testing.T) {
	engine := &stubSettler{settle: func(req domainSale.Request) (domainSale.Outcome, error) {
		return domainSale.Outcome{SaleID: req.ID, Method: req.Method, Message: "Unknown payment option."}, nil
	}}
	router := newTestRouter(engine, nil)

	body := `{"flavors":["vanilla"],"scoops":1,"price":100,"payment_option":5}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp SaleResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 5, resp.PaymentOption)
	assert.Equal(t, "Unknown payment option.", resp.Message)
}

func TestSaleController_SaleInProgress(t *testing.T) {
	engine := &stubSettler{settle: func(domainSale.Request) (domainSale.Outcome, error) {
		return domainSale.Outcome{}, domainErrors.ErrSaleInProgress
	}}
	router := newTestRouter(engine, nil)

	body := `{"flavors":["vanilla"],"scoops":1,"price":100,"payment_option":0}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body)))

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sale_in_progress", resp.Code)
}

func TestSaleController_InvalidBody(t *testing.T) {
	engine := &stubSettler{settle: func(domainSale.Request) (domainSale.Outcome, error) {
		t.Fatal("engine must not be called")
		return domainSale.Outcome{}, nil
	}}
	router := newTestRouter(engine, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(`{"scoops":1}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPulseController_Inject(t *testing.T) {
	injector := &stubInjector{}
	router := newTestRouter(&stubSettler{}, injector)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/pulses", strings.NewReader(`{"count":3}`)))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 3, injector.injected)
	assert.JSONEq(t, `{"injected":3}`, w.Body.String())
}

func TestPulseController_RejectsBadCount(t *testing.T) {
	injector := &stubInjector{}
	router := newTestRouter(&stubSettler{}, injector)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/pulses", strings.NewReader(`{"count":0}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, injector.injected)
}

func TestRouter_PulsesAbsentWithoutSimulatedLine(t *testing.T) {
	router := newTestRouter(&stubSettler{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/pulses", strings.NewReader(`{"count":1}`)))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
