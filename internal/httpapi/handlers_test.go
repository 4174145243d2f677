package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sarafa/backend/internal/cache"
	"sarafa/backend/internal/service"
	"sarafa/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, nil, "*")
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", username, rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token in login response, got %v", body)
	}
	return token
}

func loginAsAdmin(t *testing.T, api *API) string {
	return login(t, api, "admin", "admin123")
}

func loginAsEmployee(t *testing.T, api *API) string {
	return login(t, api, "fathi", "employee123")
}

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCurrenciesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/currencies", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestSaleAndCancelOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsEmployee(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions", token, csrf, map[string]any{
		"service_id":     "svc-usd-cash",
		"amount_foreign": "100",
		"payment_type":   "cash",
		"customer_name":  "Walk-in",
		"to":             "",
		"number":         "",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Transaction struct {
			ID        string `json:"id"`
			AmountLYD string `json:"amount_lyd"`
			Status    string `json:"status"`
		} `json:"transaction"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create body: %v", err)
	}
	if created.Transaction.AmountLYD != "800" {
		t.Fatalf("amount lyd: want 800, got %s", created.Transaction.AmountLYD)
	}
	if created.Transaction.Status != "completed" {
		t.Fatalf("status: want completed, got %s", created.Transaction.Status)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/treasury", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("treasury: expected 200, got %d", rec.Code)
	}
	var drawer struct {
		Treasury struct {
			Balance string `json:"balance"`
		} `json:"treasury"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&drawer); err != nil {
		t.Fatalf("decode treasury body: %v", err)
	}
	if drawer.Treasury.Balance != "800" {
		t.Fatalf("treasury balance: want 800, got %s", drawer.Treasury.Balance)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/transactions/"+created.Transaction.ID+"/status", token, csrf, map[string]string{
		"status": "cancelled",
		"reason": "test cancel",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/treasury", token, "", nil)
	if err := json.NewDecoder(rec.Body).Decode(&drawer); err != nil {
		t.Fatalf("decode treasury body: %v", err)
	}
	if drawer.Treasury.Balance != "0" {
		t.Fatalf("treasury after cancel: want 0, got %s", drawer.Treasury.Balance)
	}
}

func TestRestockForbiddenForEmployee(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsEmployee(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/currencies/cur-usd/lots", token, csrf, map[string]string{
		"quantity":      "100",
		"cost_per_unit": "7",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee restock, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRestockAsAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/currencies/cur-usd/lots", token, csrf, map[string]string{
		"quantity":      "100",
		"cost_per_unit": "7.05",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestFinancialReportForbiddenForEmployee(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsEmployee(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/reports/financial?from=2026-01-01&to=2026-12-31", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsEmployee(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions", token, csrf, map[string]any{
		"service_id": "svc-usd-cash",
		"surprise":   true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSaleWithoutInventoryReturns422(t *testing.T) {
	api := newTestAPI(t)
	adminToken := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/currencies", adminToken, csrf, map[string]string{
		"name":   "CHF",
		"symbol": "Fr",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create currency: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var currency struct {
		Currency struct {
			ID string `json:"id"`
		} `json:"currency"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&currency); err != nil {
		t.Fatalf("decode currency: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/services", adminToken, csrf, map[string]string{
		"name":        "CHF Cash Sale",
		"image_url":   "",
		"price":       "8.5",
		"operation":   "multiply",
		"currency_id": currency.Currency.ID,
		"country_id":  "cty-ly",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create service: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var svc struct {
		Service struct {
			ID string `json:"id"`
		} `json:"service"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&svc); err != nil {
		t.Fatalf("decode service: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/transactions", adminToken, csrf, map[string]any{
		"service_id":     svc.Service.ID,
		"amount_foreign": "10",
		"payment_type":   "cash",
		"customer_name":  "",
		"to":             "",
		"number":         "",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 with no lots, got %d (%s)", rec.Code, rec.Body.String())
	}
}
