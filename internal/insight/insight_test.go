package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasira/backend/internal/domain"
)

func TestBusinessAdviceFromUpstream(t *testing.T) {
	var received adviceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(adviceResponse{Advice: "Tambah stok kopi susu menjelang akhir pekan."})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	advice := client.BusinessAdvice(context.Background(), domain.ReportStats{
		Revenue:    58000,
		COGS:       20000,
		NetProfit:  33000,
		OrderCount: 1,
	})

	assert.Equal(t, "Tambah stok kopi susu menjelang akhir pekan.", advice)
	assert.Equal(t, int64(58000), received.Revenue)
	assert.Equal(t, 1, received.OrderCount)
}

func TestBusinessAdviceFallsBackWhenUnconfigured(t *testing.T) {
	client := NewClient("")
	advice := client.BusinessAdvice(context.Background(), domain.ReportStats{})
	assert.Equal(t, fallbackAdvice, advice)
}

func TestBusinessAdviceFallsBackOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	assert.Equal(t, fallbackAdvice, client.BusinessAdvice(context.Background(), domain.ReportStats{}))
}

func TestBusinessAdviceFallsBackOnEmptyAdvice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(adviceResponse{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	assert.Equal(t, fallbackAdvice, client.BusinessAdvice(context.Background(), domain.ReportStats{}))
}

func TestBusinessAdviceFallsBackOnUnreachableHost(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	assert.Equal(t, fallbackAdvice, client.BusinessAdvice(context.Background(), domain.ReportStats{}))
}
