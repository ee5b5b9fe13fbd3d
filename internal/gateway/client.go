package gateway

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
)

const maxUpstreamBody = 1 << 20

// upstreamResponse is the raw outcome of one gateway call.
type upstreamResponse struct {
	Status int
	Body   []byte
	// JSON is the decoded body, nil when the body is not valid JSON.
	JSON any
}

func (r *upstreamResponse) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

// object returns the decoded body when it is a JSON object.
func (r *upstreamResponse) object() map[string]any {
	m, _ := r.JSON.(map[string]any)
	return m
}

func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, timeout time.Duration) (*upstreamResponse, error) {
	return send(ctx, client, endpoint, "application/x-www-form-urlencoded", []byte(form.Encode()), timeout)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any, timeout time.Duration) (*upstreamResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return send(ctx, client, endpoint, "application/json", data, timeout)
}

func send(ctx context.Context, client *http.Client, endpoint, contentType string, body []byte, timeout time.Duration) (*upstreamResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &upstreamResponse{Status: resp.StatusCode, Body: respBody}
	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		out.JSON = decoded
	}
	return out, nil
}

var messageFields = []string{"error_desc", "error_Message", "error", "message", "msg", "data"}

// extractMessage pulls a human-readable message out of an upstream body.
func extractMessage(body map[string]any, fallback string) string {
	for _, key := range messageFields {
		switch v := body[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s := extractMessage(v, ""); s != "" {
				return s
			}
		}
	}
	return fallback
}

// failureMessage describes a non-2xx or undecodable upstream response.
func failureMessage(resp *upstreamResponse, fallback string) string {
	if body := resp.object(); body != nil {
		if msg := extractMessage(body, ""); msg != "" {
			return msg
		}
	}
	if resp.JSON == nil && len(resp.Body) > 0 && resp.ok() {
		return fallback + ": malformed response body"
	}
	if !resp.ok() {
		return fmt.Sprintf("%s: upstream status %d", fallback, resp.Status)
	}
	return fallback
}
