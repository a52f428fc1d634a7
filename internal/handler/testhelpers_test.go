package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// setupAuthContext stamps an authenticated principal onto the request, the
// way the auth middleware does after validating a token
func setupAuthContext(c echo.Context, userID uuid.UUID) {
	ctx := context.WithValue(c.Request().Context(), middleware.PrincipalIDKey, userID)
	c.SetRequest(c.Request().WithContext(ctx))
}

func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
