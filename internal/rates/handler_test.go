package rates

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentWithoutActiveRateIsUnprocessable(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

	req := httptest.NewRequest(http.MethodGet, "/rates/current?metal_type=GOLD&purity=22K", nil)
	rr := httptest.NewRecorder()
	h.handleCurrent(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "No Active Rate")
}
