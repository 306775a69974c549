package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keepmind9/relaybot/internal/core"
	"github.com/keepmind9/relaybot/pkg/constants"
)

// HookClient talks to a running relay's hook server with timeout control
type HookClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHookClient creates a client for the hook server at baseURL
func NewHookClient(baseURL string) *HookClient {
	return &HookClient{
		baseURL: baseURL,
		timeout: constants.HookHTTPTimeout,
		client:  http.DefaultClient,
	}
}

// hookURL builds the base URL of the local hook server
func hookURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d", host, port)
}

// Broadcast queues text on every connection except the one called except
func (h *HookClient) Broadcast(ctx context.Context, text, except string) (core.BroadcastResult, error) {
	var result core.BroadcastResult
	path := "/broadcast"
	if except != "" {
		path += "?except=" + url.QueryEscape(except)
	}
	err := h.do(ctx, http.MethodPost, path, []byte(text), &result)
	return result, err
}

// Status fetches the relay status
func (h *HookClient) Status(ctx context.Context) (core.Status, error) {
	var status core.Status
	err := h.do(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

func (h *HookClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != constants.HTTPSuccessStatusCode {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
