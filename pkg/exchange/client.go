// Package exchange provides the HTTP client for the remote answering endpoint.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pai-chat-client/internal/config"
)

// 读取错误响应体时的上限，避免把巨大的错误页塞进日志。
const maxErrorBody = 4 << 10

// Client issues the two exchanges against the answering endpoint.
// It never retries and never touches conversation state.
type Client interface {
	SendMessage(ctx context.Context, text, sessionID string) SendOutcome
	ResetSession(ctx context.Context, sessionID string) ResetOutcome
}

type httpClient struct {
	cfg    config.EndpointConfig
	client *http.Client
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg config.EndpointConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// chatResponse 同时覆盖成功与失败两种形状。
type chatResponse struct {
	Response  *string `json:"response"`
	SessionID string  `json:"session_id"`
	Error     *string `json:"error"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type resetResponse struct {
	SessionID string  `json:"session_id"`
	Error     *string `json:"error"`
}

func (c *httpClient) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// post 发送 JSON 请求。返回 err 仅表示网络层失败。
func (c *httpClient) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	return resp, nil
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(b)
}

// SendMessage posts {message, session_id} and classifies the reply.
func (c *httpClient) SendMessage(ctx context.Context, text, sessionID string) SendOutcome {
	resp, err := c.post(ctx, c.cfg.ChatPath, chatRequest{Message: text, SessionID: sessionID})
	if err != nil {
		return Unreachable{Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return StatusFailure{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Unreachable{Err: fmt.Errorf("failed to read chat response: %w", err)}
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Unreachable{Err: fmt.Errorf("failed to unmarshal chat response: %w", err)}
	}
	switch {
	case out.Error != nil:
		return Declined{Message: *out.Error}
	case out.Response != nil:
		return Answered{Text: *out.Response, SessionID: out.SessionID}
	default:
		return StatusFailure{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// ResetSession posts {session_id}. Any failure collapses into ResetFailed.
func (c *httpClient) ResetSession(ctx context.Context, sessionID string) ResetOutcome {
	resp, err := c.post(ctx, c.cfg.ResetPath, resetRequest{SessionID: sessionID})
	if err != nil {
		return ResetFailed{Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return ResetFailed{Err: StatusFailure{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}}
	}
	var out resetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return ResetFailed{Err: fmt.Errorf("failed to unmarshal reset response: %w", err)}
	}
	if out.Error != nil {
		return ResetFailed{Err: fmt.Errorf("endpoint declined reset: %s", *out.Error)}
	}
	return Reset{SessionID: out.SessionID}
}
