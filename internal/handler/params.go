package handler

import (
	"strconv"
	"strings"

	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	headerIfMatch        = "If-Match"
	headerIdempotencyKey = "Idempotency-Key"
)

// pathUUID parses a UUID path parameter
func pathUUID(c echo.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// expectedVersion parses the If-Match header into an entity version. ETags
// are plain version numbers, optionally quoted.
func expectedVersion(c echo.Context) (int64, bool) {
	raw := strings.Trim(c.Request().Header.Get(headerIfMatch), `"`)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

// idempotencyKey reads the Idempotency-Key header
func idempotencyKey(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
}

// parseMonthYear parses a YYYYMM month string
func parseMonthYear(raw string) (util.MonthYear, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	m := util.MonthYear(n)
	return m, m.Valid()
}
