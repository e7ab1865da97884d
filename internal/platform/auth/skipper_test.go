package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/v1/claims", false},
		{"/v1/claims/:claimId", false},
		{"/v1/claims/top-providers", false},
		{"/health/extra", false},
		{"/", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
			if got := IsPublicPath(tt.path); got != tt.want {
				t.Errorf("IsPublicPath(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIdentityFromContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity on empty context")
	}
	if s := SubjectFromContext(context.Background()); s != "" {
		t.Errorf("expected empty subject, got %q", s)
	}

	ctx := WithIdentity(context.Background(), Identity{Subject: "u1", TenantID: "t1"})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Subject != "u1" || id.TenantID != "t1" {
		t.Errorf("unexpected identity %+v (ok=%v)", id, ok)
	}
	if SubjectFromContext(ctx) != "u1" {
		t.Errorf("expected subject u1")
	}
}
