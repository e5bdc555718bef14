package main

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

	"github.com/qiaoqiao/match3-server/game/engine"
	"github.com/qiaoqiao/match3-server/game/service"
)

// Client plays one session through the REST API
type Client struct {
	baseURL   string
	sessionID string
	token     string
	client    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiError is a non-2xx answer from the server
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func (c *Client) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(c.sessionID) + suffix
}

func (c *Client) CreateSession(ctx context.Context, configName string, userID int64) (*service.SessionInfo, error) {
	body := map[string]interface{}{}
	if configName != "" {
		body["config"] = configName
	}
	if userID > 0 {
		body["user_id"] = userID
	}

	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	c.sessionID = info.ID
	return &info, nil
}

func (c *Client) GetSession(ctx context.Context) (*service.SessionInfo, error) {
	var info service.SessionInfo
	if err := c.do(ctx, http.MethodGet, c.sessionPath(""), nil, &info); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &info, nil
}

func (c *Client) Move(ctx context.Context, m engine.Move) (*service.MoveResult, error) {
	body := map[string]int{"row1": m.FromRow, "col1": m.FromCol, "row2": m.ToRow, "col2": m.ToCol}

	var result service.MoveResult
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/move"), body, &result); err != nil {
		return nil, fmt.Errorf("move %s: %w", m, err)
	}
	return &result, nil
}

func (c *Client) Resume(ctx context.Context) (*service.SessionInfo, error) {
	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/resume"), nil, &info); err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	return &info, nil
}

func (c *Client) Reshuffle(ctx context.Context) (*service.SessionInfo, error) {
	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/reshuffle"), nil, &info); err != nil {
		return nil, fmt.Errorf("reshuffle: %w", err)
	}
	return &info, nil
}
