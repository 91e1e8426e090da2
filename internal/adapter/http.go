package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/unified"
)

const (
	maxErrorBodySize = 512
	defaultMaxPages  = 50
)

// HTTPConfig describes one provider list/create endpoint
type HTTPConfig struct {
	// ListPath is appended to the connection base URL
	ListPath string
	// Query holds static parameters sent with every list request
	Query map[string]string
	// ItemsKey is the dotted path of the record array in the list response; empty means the body is the array
	ItemsKey string
	// FieldsParam names the query parameter carrying requested fields; empty disables field selection
	FieldsParam string
	// BaseFields are always requested when FieldsParam is set
	BaseFields []string
	// CursorKey is the dotted path of the next-page cursor in the list response
	CursorKey string
	// CursorParam carries CursorKey's value on the next request
	CursorParam string
	MaxPages    int

	// CreatePath enables CreateRemote when set
	CreatePath string
	// CreateWrapKey wraps the request body and unwraps the response, e.g. {"ticket": {...}}
	CreateWrapKey string
}

// HTTPAdapter talks JSON over HTTP with a bearer token
type HTTPAdapter struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

var (
	_ Adapter = (*HTTPAdapter)(nil)
	_ Creator = (*HTTPAdapter)(nil)
)

func NewHTTPAdapter(cfg HTTPConfig, client *http.Client, logger *zap.Logger) *HTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &HTTPAdapter{cfg: cfg, client: client, logger: logger}
}

func (a *HTTPAdapter) FetchRemote(ctx context.Context, conn Connection, extraFields []string) ([]unified.RawRecord, error) {
	var (
		records []unified.RawRecord
		cursor  string
	)
	for page := 0; page < a.cfg.MaxPages; page++ {
		endpoint, err := a.listURL(conn, extraFields, cursor)
		if err != nil {
			return nil, err
		}

		var body any
		if err := a.do(ctx, http.MethodGet, endpoint, conn, nil, &body); err != nil {
			return nil, err
		}

		items, err := itemsAt(body, a.cfg.ItemsKey)
		if err != nil {
			return nil, err
		}
		records = append(records, items...)

		if a.cfg.CursorKey == "" {
			break
		}
		cursor = stringAt(body, a.cfg.CursorKey)
		if cursor == "" {
			break
		}
	}

	a.logger.Debug("Fetched remote records",
		zap.String("provider", conn.Provider),
		zap.String("path", a.cfg.ListPath),
		zap.Int("count", len(records)),
	)
	return records, nil
}

func (a *HTTPAdapter) CreateRemote(ctx context.Context, conn Connection, record unified.RawRecord) (unified.RawRecord, error) {
	if a.cfg.CreatePath == "" {
		return nil, fmt.Errorf("adapter: %s does not support create", conn.Provider)
	}
	endpoint, err := joinURL(conn.BaseURL, a.cfg.CreatePath)
	if err != nil {
		return nil, err
	}

	var payload any = record
	if a.cfg.CreateWrapKey != "" {
		payload = map[string]any{a.cfg.CreateWrapKey: record}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create payload: %w", err)
	}

	var response map[string]any
	if err := a.do(ctx, http.MethodPost, endpoint, conn, body, &response); err != nil {
		return nil, err
	}
	if a.cfg.CreateWrapKey != "" {
		if inner, ok := response[a.cfg.CreateWrapKey].(map[string]any); ok {
			return inner, nil
		}
	}
	return response, nil
}

func (a *HTTPAdapter) listURL(conn Connection, extraFields []string, cursor string) (string, error) {
	endpoint, err := joinURL(conn.BaseURL, a.cfg.ListPath)
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid list url %q: %w", endpoint, err)
	}
	query := parsed.Query()
	for k, v := range a.cfg.Query {
		query.Set(k, v)
	}
	if a.cfg.FieldsParam != "" {
		fields := append(append([]string{}, a.cfg.BaseFields...), extraFields...)
		if len(fields) > 0 {
			query.Set(a.cfg.FieldsParam, strings.Join(dedupe(fields), ","))
		}
	}
	if cursor != "" && a.cfg.CursorParam != "" {
		query.Set(a.cfg.CursorParam, cursor)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (a *HTTPAdapter) do(ctx context.Context, method, endpoint string, conn Connection, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if conn.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", conn.Provider, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Provider: conn.Provider, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", conn.Provider, err)
	}
	return nil
}

// StatusError is returned for non-2xx provider responses
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

func joinURL(base, path string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("connection has no base url")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func lookup(body any, path string) any {
	if path == "" {
		return body
	}
	current := body
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

func itemsAt(body any, path string) ([]unified.RawRecord, error) {
	value := lookup(body, path)
	if value == nil {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array at %q, got %T", path, value)
	}
	records := make([]unified.RawRecord, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object at %q[%d], got %T", path, i, item)
		}
		records = append(records, obj)
	}
	return records, nil
}

func stringAt(body any, path string) string {
	switch v := lookup(body, path).(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
