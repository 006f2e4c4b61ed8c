package paymentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"paylink-server-go/internal/domain/account"
	"paylink-server-go/internal/domain/auth"
	"paylink-server-go/internal/domain/eventbus"
	"paylink-server-go/internal/domain/payment"
	"paylink-server-go/internal/domain/payment/coinbase"
	"paylink-server-go/internal/domain/token"
	"paylink-server-go/internal/domain/token/registry"
	"paylink-server-go/internal/platform/config"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	"paylink-server-go/internal/platform/storage"
	httptransport "paylink-server-go/internal/transport/http"
)

type fakeCharger struct {
	charge coinbase.Charge
	err    error
}

func (f *fakeCharger) CreateCharge(_ context.Context, _ string, _ float64, _ string) (coinbase.Charge, error) {
	return f.charge, f.err
}

type testHarness struct {
	engine   *gin.Engine
	accounts *account.Service
	auth     *auth.Manager
}

func newTestHarness(t *testing.T, charger payment.ChargeCreator) *testHarness {
	t.Helper()

	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	logger, err := logging.New(logging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})

	accounts := account.NewService(db, logger)
	payments := payment.NewService(db, charger, eventbus.New(), logger)

	accessCodec, err := token.NewCodec("access-secret", time.Hour)
	if err != nil {
		t.Fatalf("access codec: %v", err)
	}
	refreshCodec, err := token.NewCodec("refresh-secret", 6*time.Hour)
	if err != nil {
		t.Fatalf("refresh codec: %v", err)
	}
	mgr, err := auth.NewManager(auth.Options{
		AccessCodec:  accessCodec,
		RefreshCodec: refreshCodec,
		Registry:     registry.NewMemory(registry.Config{}),
		Credentials:  accounts,
		Bus:          eventbus.New(),
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() {
		_ = mgr.Close()
	})

	router, err := httptransport.Build(httptransport.Options{
		Config:         &config.Config{Log: config.LogConfig{Level: "error"}},
		Logger:         logger,
		AuthMiddleware: httptransport.BearerAuth(mgr, logger),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	svc, err := NewService(payments, accounts, logger)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Register(context.Background(), router); err != nil {
		t.Fatalf("Register: %v", err)
	}

	return &testHarness{engine: router.Engine, accounts: accounts, auth: mgr}
}

func (h *testHarness) signup(t *testing.T, username, password string) {
	t.Helper()
	if err := h.accounts.Signup(context.Background(), username, password); err != nil {
		t.Fatalf("signup %s: %v", username, err)
	}
}

func (h *testHarness) accessToken(t *testing.T, username, password string) string {
	t.Helper()
	pair, err := h.auth.Authenticate(context.Background(), username, password)
	if err != nil {
		t.Fatalf("authenticate %s: %v", username, err)
	}
	return pair.AccessToken
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestPaymentSuccessRecordsPayment(t *testing.T) {
	h := newTestHarness(t, nil)
	h.signup(t, "merchant1", "secret1")

	rec := doJSON(t, h.engine, http.MethodPost, "/payment-success", gin.H{
		"username": "merchant1",
		"amount":   25.0,
		"chargeId": "charge-1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payment-success returned %d: %s", rec.Code, rec.Body.String())
	}

	accessToken := h.accessToken(t, "merchant1", "secret1")
	rec = doJSON(t, h.engine, http.MethodGet, "/api/payments", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("payments list returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Payments []storage.PaymentRecord `json:"payments"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(resp.Data.Payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(resp.Data.Payments))
	}
	if resp.Data.Payments[0].ChargeID != "charge-1" {
		t.Errorf("unexpected payment: %+v", resp.Data.Payments[0])
	}
}

func TestPaymentSuccessMissingFields(t *testing.T) {
	h := newTestHarness(t, nil)

	cases := []gin.H{
		{"amount": 25.0, "chargeId": "c1"},
		{"username": "merchant1", "chargeId": "c1"},
		{"username": "merchant1", "amount": 25.0},
	}
	for _, body := range cases {
		rec := doJSON(t, h.engine, http.MethodPost, "/payment-success", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %v, got %d", body, rec.Code)
		}
	}
}

func TestPaymentSuccessDuplicateDelivery(t *testing.T) {
	h := newTestHarness(t, nil)
	h.signup(t, "merchant1", "secret1")

	body := gin.H{"username": "merchant1", "amount": 25.0, "chargeId": "charge-1"}
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h.engine, http.MethodPost, "/payment-success", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d returned %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	accessToken := h.accessToken(t, "merchant1", "secret1")
	rec := doJSON(t, h.engine, http.MethodGet, "/api/payments", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	var resp struct {
		Data struct {
			Payments []storage.PaymentRecord `json:"payments"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(resp.Data.Payments) != 1 {
		t.Errorf("expected 1 payment after redelivery, got %d", len(resp.Data.Payments))
	}
}

func TestResolvePayLink(t *testing.T) {
	h := newTestHarness(t, nil)
	h.signup(t, "merchant1", "secret1")

	rec := doJSON(t, h.engine, http.MethodGet, "/pay/merchant1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay link returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h.engine, http.MethodGet, "/pay/ghost", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown merchant, got %d", rec.Code)
	}
}

func TestCreateChargeForPayLink(t *testing.T) {
	charger := &fakeCharger{charge: coinbase.Charge{
		ID:        "charge-9",
		HostedURL: "https://commerce.coinbase.com/charges/XYZ",
	}}
	h := newTestHarness(t, charger)
	h.signup(t, "merchant1", "secret1")

	rec := doJSON(t, h.engine, http.MethodPost, "/pay/merchant1/charges", gin.H{"amount": 30.0}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("charge creation returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			ChargeID  string `json:"chargeId"`
			HostedURL string `json:"hostedUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.ChargeID != "charge-9" || resp.Data.HostedURL == "" {
		t.Errorf("unexpected charge payload: %+v", resp.Data)
	}
}

func TestCreateChargeValidation(t *testing.T) {
	h := newTestHarness(t, &fakeCharger{})
	h.signup(t, "merchant1", "secret1")

	rec := doJSON(t, h.engine, http.MethodPost, "/pay/merchant1/charges", gin.H{"amount": 0}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero amount, got %d", rec.Code)
	}

	rec = doJSON(t, h.engine, http.MethodPost, "/pay/ghost/charges", gin.H{"amount": 10}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown merchant, got %d", rec.Code)
	}
}

func TestCreateChargeProcessorFailure(t *testing.T) {
	charger := &fakeCharger{err: platformerrors.New(platformerrors.KindPayment,
		"coinbase.create_charge", "processor error")}
	h := newTestHarness(t, charger)
	h.signup(t, "merchant1", "secret1")

	rec := doJSON(t, h.engine, http.MethodPost, "/pay/merchant1/charges", gin.H{"amount": 10}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for processor failure, got %d", rec.Code)
	}
}

func TestListPaymentsRequiresAuth(t *testing.T) {
	h := newTestHarness(t, nil)

	rec := doJSON(t, h.engine, http.MethodGet, "/api/payments", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}
