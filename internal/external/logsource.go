package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/httputil"
	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pipeline"
)

const maxLogBody = 32 << 20

// LogSource reads the full trade-log batch from the log server.
type LogSource struct {
	url        string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewLogSource(url string, log zerolog.Logger) *LogSource {
	return &LogSource{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    time.Second,
			Log:         log,
		},
	}
}

// Fetch returns the raw records. Every failure wraps pipeline.ErrSourceUnavailable.
func (s *LogSource) Fetch(ctx context.Context) ([]any, error) {
	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", pipeline.ErrSourceUnavailable, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: log server returned status %d", pipeline.ErrSourceUnavailable, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxLogBody))
	dec.UseNumber()

	var records []any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", pipeline.ErrSourceUnavailable, err)
	}
	if records == nil {
		records = []any{}
	}
	return records, nil
}

// LogSink appends swap logs to the log server.
type LogSink struct {
	url        string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewLogSink(url string, log zerolog.Logger) *LogSink {
	return &LogSink{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Log:         log,
		},
	}
}

func (s *LogSink) Post(ctx context.Context, entry models.SwapLog) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal swap log: %w", err)
	}

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("post swap log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("log server returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
