package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldops/auth-service/internal/config"
)

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.InfoLevel))
	require.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestRedaction(t *testing.T) {
	require.Equal(t, "al***@x.com", RedactEmail("alice@x.com"))
	require.Equal(t, "***@x.com", RedactEmail("al@x.com"))
	require.Equal(t, "***", RedactEmail("not-an-email"))
	require.Equal(t, "***567", RedactPhone("9841234567"))
	require.Equal(t, "***", RedactPhone("12"))
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordError("/auth/login", "POST", "UNAUTHORIZED")

	snap := m.Snapshot()
	require.Equal(t, int64(2), snap.Requests["/auth/login|POST|200"])
	require.Equal(t, int64(1), snap.Errors["/auth/login|POST|UNAUTHORIZED"])

	var nilMetrics *Metrics
	nilMetrics.RecordRequest("/", "GET", 200, 0)
	require.Empty(t, nilMetrics.Snapshot().Requests)
}

func TestRequestLogger_RecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), metrics))
	app.Get("/accounts/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/accounts/42", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, int64(1), metrics.Snapshot().Requests["/accounts/42|GET|204"])
}
