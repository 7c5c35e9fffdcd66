package messaging

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/platform/storage"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"permission denied", authz.ErrPermissionDenied, http.StatusForbidden},
		{"not a contact", fmt.Errorf("%w: account x", ErrNotContact), http.StatusForbidden},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"self message", ErrSelfMessage, http.StatusBadRequest},
		{"empty message", ErrEmptyMessage, http.StatusBadRequest},
		{"store outage", fmt.Errorf("%w: inserting message: %v", storage.ErrUnavailable, errors.New("no reachable servers")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			he, ok := mapError(tc.err).(*echo.HTTPError)
			if !ok {
				t.Fatalf("mapError(%v) did not return *echo.HTTPError", tc.err)
			}
			if he.Code != tc.code {
				t.Fatalf("mapError(%v) = %d, want %d", tc.err, he.Code, tc.code)
			}
		})
	}
}
