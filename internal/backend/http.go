package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/inspection"
)

// ErrNotConfigured is returned when the endpoint for an operation is unset.
var ErrNotConfigured = errors.New("backend endpoint not configured")

const maxClientErrorBody = 64 << 10

type Endpoints struct {
	LookupURL     string
	SubmitURL     string
	TasksURL      string
	FlowDetailURL string
}

// HTTPBackend talks to the live lookup and submission services over JSON.
type HTTPBackend struct {
	endpoints Endpoints
	client    *http.Client
}

func NewHTTPBackend(endpoints Endpoints, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

// sessionWire accepts both the current tenant field names and the older
// hgName/hgPhone pair some lookup deployments still return.
type sessionWire struct {
	domain.Session
	HGName  string `json:"hgName"`
	HGPhone string `json:"hgPhone"`
}

func (b *HTTPBackend) Resolve(ctx context.Context, flowID string) (domain.Session, error) {
	var wire sessionWire
	if err := b.getJSON(ctx, b.endpoints.LookupURL, url.Values{"flowId": {flowID}}, &wire); err != nil {
		return domain.Session{}, fmt.Errorf("failed to resolve flow: %w", err)
	}
	s := wire.Session
	if s.TenantName == "" {
		s.TenantName = wire.HGName
	}
	if s.TenantPhone == "" {
		s.TenantPhone = wire.HGPhone
	}
	if s.FlowID == "" {
		s.FlowID = flowID
	}
	return s, nil
}

func (b *HTTPBackend) ListTasks(ctx context.Context) (domain.TaskInbox, error) {
	var inbox domain.TaskInbox
	if err := b.getJSON(ctx, b.endpoints.TasksURL, nil, &inbox); err != nil {
		return domain.TaskInbox{}, fmt.Errorf("failed to list tasks: %w", err)
	}
	return inbox, nil
}

func (b *HTTPBackend) FlowDetail(ctx context.Context, flowID string) (domain.FlowDetail, error) {
	var detail domain.FlowDetail
	if err := b.getJSON(ctx, b.endpoints.FlowDetailURL, url.Values{"flowId": {flowID}}, &detail); err != nil {
		return domain.FlowDetail{}, fmt.Errorf("failed to get flow detail: %w", err)
	}
	return detail, nil
}

func (b *HTTPBackend) Submit(ctx context.Context, p inspection.Payload) (domain.SubmitResult, error) {
	if b.endpoints.SubmitURL == "" {
		return domain.SubmitResult{}, ErrNotConfigured
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoints.SubmitURL, bytes.NewReader(payload))
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result domain.SubmitResult
	if err := b.do(req, &result); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("failed to submit inspection: %w", err)
	}
	return result, nil
}

func (b *HTTPBackend) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	if endpoint == "" {
		return ErrNotConfigured
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return b.do(req, out)
}

func (b *HTTPBackend) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close backend response body", "error", err)
		}
	}()

	// Lookups answer unknown or expired flows with a 4xx and an ok=false
	// body; that body is the answer, not a transport failure.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxClientErrorBody))
		if json.Unmarshal(errBody, out) == nil {
			return nil
		}
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(errBody, 1024))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, errBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
