package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bkp4113/claim-app/internal/config"
	"github.com/bkp4113/claim-app/internal/domain/claims"
	"github.com/bkp4113/claim-app/internal/platform/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                       "development",
		CORSOrigins:               []string{"*"},
		CORSAllowedMethods:        []string{"*"},
		CORSAllowedHeaders:        []string{"*"},
		TopProvidersRatePerMinute: 10,
		IngestMaxAttempts:         3,
		RequestTimeout:            5 * time.Second,
		BodyLimit:                 "1K",
	}
}

// Requests in these tests never reach storage, so the service has no repo.
func testServer(cfg *config.Config) *echo.Echo {
	return newServer(cfg, zerolog.Nop(), serverDeps{
		svc:     claims.NewService(nil, cfg.IngestMaxAttempts),
		limiter: middleware.NewMemoryLimiter(cfg.TopProvidersRatePerMinute),
	})
}

func serve(e *echo.Echo, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	e := testServer(testConfig())
	rec := serve(e, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"OK"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("missing request id header")
	}
}

func TestClaimsRequireAuth(t *testing.T) {
	e := testServer(testConfig())
	rec := serve(e, http.MethodGet, "/v1/claims", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Authentication Required.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDevAuth_ValidationBeforeStorage(t *testing.T) {
	e := testServer(testConfig())

	rec := serve(e, http.MethodGet, "/v1/claims/0", "dev", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("claimId 0: expected 400, got %d", rec.Code)
	}

	rec = serve(e, http.MethodPost, "/v1/claims/", "dev", `[{"Provider NPI": "1234514"}]`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid batch: expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/v1/claims?limit=500", "dev", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=500: expected 400, got %d", rec.Code)
	}
}

func TestUnversionedClaimsRoutes(t *testing.T) {
	e := testServer(testConfig())

	rec := serve(e, http.MethodGet, "/claims", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no credential: expected 401, got %d", rec.Code)
	}

	rec = serve(e, http.MethodGet, "/claims/abc", "dev", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("claimId abc: expected 400, got %d", rec.Code)
	}

	rec = serve(e, http.MethodPost, "/claims", "dev", `[{"Provider NPI": "1234514"}]`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid batch: expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBodyLimit(t *testing.T) {
	e := testServer(testConfig())
	body := "[" + strings.Repeat(`{"quadrant": "UR"},`, 200) + `{}]`
	rec := serve(e, http.MethodPost, "/v1/claims", "dev", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestJWTMode(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthMode = config.AuthModeJWT
	cfg.AuthSigningKey = "test-secret"
	cfg.AuthIssuer = "claims-test"
	e := testServer(cfg)

	rec := serve(e, http.MethodGet, "/v1/claims/abc", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc-reporting",
		Issuer:    "claims-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec = serve(e, http.MethodGet, "/v1/claims/abc", signed, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("valid token: expected 400 for bad id, got %d", rec.Code)
	}
}
