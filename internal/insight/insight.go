package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"kasira/backend/internal/domain"
)

// fallbackAdvice is returned whenever the upstream advisor is unconfigured or
// unreachable, so the report endpoint never fails on advisory content.
const fallbackAdvice = "Gunakan strategi bundle produk untuk meningkatkan basket size dan optimalkan jam operasional pada waktu sibuk."

// Client asks an external advisor service for a short recommendation based on
// aggregated sales figures.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Entry
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 8 * time.Second},
		logger:  log.WithField("component", "insight"),
	}
}

type adviceRequest struct {
	Revenue       int64 `json:"revenue"`
	COGS          int64 `json:"cogs"`
	GrossProfit   int64 `json:"grossProfit"`
	NetProfit     int64 `json:"netProfit"`
	TotalDiscount int64 `json:"totalDiscount"`
	OrderCount    int   `json:"orderCount"`
}

type adviceResponse struct {
	Advice string `json:"advice"`
}

// BusinessAdvice never returns an error: on any upstream failure it degrades
// to the static fallback.
func (c *Client) BusinessAdvice(ctx context.Context, stats domain.ReportStats) string {
	if c.baseURL == "" {
		return fallbackAdvice
	}

	advice, err := c.fetch(ctx, stats)
	if err != nil {
		c.logger.WithError(err).Warn("insight upstream unavailable, using fallback")
		return fallbackAdvice
	}
	if advice == "" {
		return fallbackAdvice
	}
	return advice
}

func (c *Client) fetch(ctx context.Context, stats domain.ReportStats) (string, error) {
	body, err := json.Marshal(adviceRequest{
		Revenue:       stats.Revenue,
		COGS:          stats.COGS,
		GrossProfit:   stats.GrossProfit,
		NetProfit:     stats.NetProfit,
		TotalDiscount: stats.TotalDiscount,
		OrderCount:    stats.OrderCount,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("insight upstream returned %d: %w", resp.StatusCode, domain.ErrUpstream)
	}

	var parsed adviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Advice, nil
}
