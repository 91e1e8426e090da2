package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	SignatureHeader    = "X-Signature"
	maxSummaryLength   = 500
	defaultMaxBodySize = 64 * 1024
)

// DeliveryResult is the outcome of one HTTP POST
type DeliveryResult struct {
	HTTPStatus      *int
	LatencyMs       int
	ResponseBody    string
	ResponseSummary *string
	Error           error
	RetryAfter      string
}

// Deliverer posts signed payloads to endpoints
type Deliverer struct {
	client      *http.Client
	maxBodySize int
	logger      *zap.Logger
}

func NewDeliverer(timeout time.Duration, maxBodySize int, logger *zap.Logger) *Deliverer {
	return NewDelivererWithClient(&http.Client{Timeout: timeout}, maxBodySize, logger)
}

func NewDelivererWithClient(client *http.Client, maxBodySize int, logger *zap.Logger) *Deliverer {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &Deliverer{client: client, maxBodySize: maxBodySize, logger: logger}
}

// Deliver posts body to url with an X-Signature header. Transport failures are
// reported in the result, never as a panic or returned error.
func (d *Deliverer) Deliver(ctx context.Context, url string, body []byte, secret string) *DeliveryResult {
	result := &DeliveryResult{}

	signature, err := Sign(body, secret)
	if err != nil {
		result.Error = fmt.Errorf("failed to sign payload: %w", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Errorf("failed to create HTTP request: %w", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	startTime := time.Now()
	resp, err := d.client.Do(req)
	result.LatencyMs = int(time.Since(startTime).Milliseconds())
	if err != nil {
		result.Error = fmt.Errorf("HTTP request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	result.HTTPStatus = &status
	result.RetryAfter = resp.Header.Get("Retry-After")

	// one extra byte detects truncation
	buf := make([]byte, d.maxBodySize+1)
	n, readErr := io.ReadFull(resp.Body, buf)
	if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
		d.logger.Warn("Failed to read response body",
			zap.Error(readErr),
			zap.String("url", url),
		)
	}

	if n > d.maxBodySize {
		result.ResponseBody = string(buf[:d.maxBodySize])
		summary := fmt.Sprintf("Response body truncated (max %d bytes)", d.maxBodySize)
		result.ResponseSummary = &summary
		return result
	}

	result.ResponseBody = string(buf[:n])
	if n > 0 {
		summary := result.ResponseBody
		if len(summary) > maxSummaryLength {
			summary = summary[:maxSummaryLength] + "..."
		}
		result.ResponseSummary = &summary
	}
	return result
}
