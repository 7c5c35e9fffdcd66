package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer([]byte("test-secret"), time.Hour)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.Issue("acc-1", "d198001019876", "doctor")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if claims.Subject != "acc-1" {
		t.Errorf("subject = %q, want acc-1", claims.Subject)
	}
	if claims.Username != "d198001019876" {
		t.Errorf("username = %q", claims.Username)
	}
	if claims.Role != "doctor" {
		t.Errorf("role = %q, want doctor", claims.Role)
	}
}

func TestParse_RejectsWrongSecret(t *testing.T) {
	token, err := testIssuer().Issue("acc-1", "u", "patient")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	other := NewTokenIssuer([]byte("different-secret"), time.Hour)
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	expired := NewTokenIssuer([]byte("test-secret"), -time.Minute)
	token, err := expired.Issue("acc-1", "u", "patient")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := testIssuer().Parse(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestMiddleware_SetsIdentity(t *testing.T) {
	issuer := testIssuer()
	token, _ := issuer.Issue("acc-9", "viewer", "viewer")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware(issuer, nil)(func(c echo.Context) error {
		ctx := c.Request().Context()
		if got := AccountIDFromContext(ctx); got != "acc-9" {
			t.Errorf("account id = %q, want acc-9", got)
		}
		if got := RoleFromContext(ctx); got != "viewer" {
			t.Errorf("role = %q, want viewer", got)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware(testIssuer(), nil)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/auth/login")

	skip := func(c echo.Context) bool { return c.Path() == "/auth/login" }
	handler := Middleware(testIssuer(), skip)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("expected skipper to bypass auth, got %v", err)
	}
}
