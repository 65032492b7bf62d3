// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox is the stateless RPC client for the external
// execution service: sessions, interactive PTYs, files, and agent
// lifecycle. It holds no state of its own; all identifiers belong to
// the remote side.
//
// Error policy: non-2xx responses surface as *RequestError, with 404
// additionally matching ErrNotFound via errors.Is. Delete operations
// swallow 404 for idempotency; GetAgent returns nil rather than an
// error when no agent exists.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// defaultTimeout bounds each RPC to the execution service.
const defaultTimeout = 8 * time.Second

// ErrNotFound reports that the remote resource does not exist.
var ErrNotFound = errors.New("sandbox: not found")

// RequestError is a non-2xx response from the execution service.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("sandbox: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *RequestError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the root URL of the execution service. Required.
	BaseURL string

	// Token is the bearer token for authentication. Optional.
	Token string

	// Timeout bounds each request. Defaults to 8 seconds.
	Timeout time.Duration

	// HTTPClient is used for all requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives request failures at debug level. Nil means
	// silent.
	Logger *slog.Logger
}

// Client is a typed client for the execution service API.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an execution service client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("sandbox: BaseURL is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// do executes one request against the execution service. The path is
// relative to the base URL. A non-nil requestBody is JSON-encoded; a
// non-nil result receives the decoded response body. Non-2xx responses
// return *RequestError.
func (c *Client) do(ctx context.Context, method, path string, requestBody, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("sandbox: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("sandbox: creating request: %w", err)
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("sandbox: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("sandbox: reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		c.logger.Debug("sandbox request failed",
			"method", method,
			"path", path,
			"status", response.StatusCode,
		)
		return &RequestError{StatusCode: response.StatusCode, Message: errorMessage(body)}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("sandbox: decoding response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts {error: "..."} from a response body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var wireError struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error != "" {
		return wireError.Error
	}
	return strings.TrimSpace(string(body))
}

// --- Sessions ---

// CreateSession creates a remote execution session.
func (c *Client) CreateSession(ctx context.Context, request CreateSessionRequest) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/sessions", request, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession returns a remote session, or ErrNotFound.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a remote session. Deleting a session that no
// longer exists is not an error.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// --- PTYs ---

// CreatePty creates an interactive terminal channel owned by ownerID.
func (c *Client) CreatePty(ctx context.Context, sessionID string, request CreatePtyRequest) (*Pty, error) {
	var pty Pty
	path := "/sessions/" + url.PathEscape(sessionID) + "/ptys"
	if err := c.do(ctx, http.MethodPost, path, request, &pty); err != nil {
		return nil, err
	}
	return &pty, nil
}

// DeletePty deletes a PTY. Deleting a PTY that no longer exists is not
// an error.
func (c *Client) DeletePty(ctx context.Context, sessionID, ptyID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/ptys/" + url.PathEscape(ptyID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// OpenPtyStream opens the bidirectional byte stream for a PTY as a
// net.Conn. The caller owns the connection and must close it; the
// stream lives until then (it is not bounded by the client timeout).
func (c *Client) OpenPtyStream(ctx context.Context, sessionID, ptyID string) (net.Conn, error) {
	streamURL := c.baseURL + "/sessions/" + url.PathEscape(sessionID) + "/ptys/" + url.PathEscape(ptyID) + "/stream"
	streamURL = "ws" + strings.TrimPrefix(streamURL, "http")

	options := &websocket.DialOptions{HTTPClient: c.httpClient}
	if c.token != "" {
		options.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}

	wsConn, response, err := websocket.Dial(ctx, streamURL, options)
	if err != nil {
		if response != nil && response.StatusCode == http.StatusNotFound {
			return nil, &RequestError{StatusCode: http.StatusNotFound, Message: "pty stream not found"}
		}
		return nil, fmt.Errorf("sandbox: dialing pty stream: %w", err)
	}

	return websocket.NetConn(context.Background(), wsConn, websocket.MessageBinary), nil
}

// --- Files ---

// ReadFile returns the contents of a file inside a session.
func (c *Client) ReadFile(ctx context.Context, sessionID, filePath string) ([]byte, error) {
	var result struct {
		Content []byte `json:"content"`
	}
	path := "/sessions/" + url.PathEscape(sessionID) + "/files/read?path=" + url.QueryEscape(filePath)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Content, nil
}

// WriteFile writes content to a file inside a session, creating it if
// needed.
func (c *Client) WriteFile(ctx context.Context, sessionID, filePath string, content []byte) error {
	request := struct {
		Path    string `json:"path"`
		Content []byte `json:"content"`
	}{Path: filePath, Content: content}
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/files/write", request, nil)
}

// StatFile returns metadata for a file inside a session, or
// ErrNotFound.
func (c *Client) StatFile(ctx context.Context, sessionID, filePath string) (*FileInfo, error) {
	var info FileInfo
	path := "/sessions/" + url.PathEscape(sessionID) + "/files/stat?path=" + url.QueryEscape(filePath)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListFiles returns directory entries inside a session.
func (c *Client) ListFiles(ctx context.Context, sessionID, directory string) ([]FileInfo, error) {
	var result struct {
		Entries []FileInfo `json:"entries"`
	}
	path := "/sessions/" + url.PathEscape(sessionID) + "/files/list?path=" + url.QueryEscape(directory)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// --- Agents ---

// StartAgent starts an agent inside a session.
func (c *Client) StartAgent(ctx context.Context, sessionID string, request StartAgentRequest) (*Agent, error) {
	var agent Agent
	path := "/sessions/" + url.PathEscape(sessionID) + "/agents"
	if err := c.do(ctx, http.MethodPost, path, request, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// GetAgent returns an agent, or (nil, nil) when no such agent exists.
// Absence of an agent is an ordinary condition for callers polling
// agent state, not an error.
func (c *Client) GetAgent(ctx context.Context, sessionID, agentID string) (*Agent, error) {
	var agent Agent
	path := "/sessions/" + url.PathEscape(sessionID) + "/agents/" + url.PathEscape(agentID)
	err := c.do(ctx, http.MethodGet, path, nil, &agent)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// PauseAgent pauses a running agent.
func (c *Client) PauseAgent(ctx context.Context, sessionID, agentID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/agents/" + url.PathEscape(agentID) + "/pause"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// ResumeAgent resumes a paused agent.
func (c *Client) ResumeAgent(ctx context.Context, sessionID, agentID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/agents/" + url.PathEscape(agentID) + "/resume"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// StopAgent stops an agent. Stopping an agent that no longer exists is
// not an error.
func (c *Client) StopAgent(ctx context.Context, sessionID, agentID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/agents/" + url.PathEscape(agentID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
