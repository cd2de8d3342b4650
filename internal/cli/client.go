package cli

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

	"devshop/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) ListGames(ctx context.Context, sessionID string) ([]game.Game, error) {
	var out struct {
		Games []game.Game `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games?session_id="+url.QueryEscape(sessionID), nil, &out, "")
	return out.Games, err
}

func (c *Client) CreateGame(ctx context.Context, name, sessionID string) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", map[string]any{
		"name":       name,
		"session_id": sessionID,
	}, &out, "")
	return out, err
}

func (c *Client) GameState(ctx context.Context, gameID int64) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/games/%d", gameID), nil, &out, "")
	return out, err
}

func (c *Client) DeleteGame(ctx context.Context, gameID int64) error {
	return c.jsonRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/games/%d", gameID), nil, nil, "")
}

func (c *Client) Tick(ctx context.Context, gameID int64) (game.TickReport, error) {
	var out game.TickReport
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/games/%d/tick", gameID), nil, &out, "")
	return out, err
}

func (c *Client) HireDeveloper(ctx context.Context, gameID int64, name string, seniority int, cost float64, idem string) (game.HireResult[game.Developer], error) {
	var out game.HireResult[game.Developer]
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/developers", map[string]any{
		"game_id":   gameID,
		"name":      name,
		"seniority": seniority,
		"cost":      cost,
	}, &out, idem)
	return out, err
}

func (c *Client) FireDeveloper(ctx context.Context, developerID int64) error {
	return c.jsonRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/developers/%d", developerID), nil, nil, "")
}

func (c *Client) HireSalesperson(ctx context.Context, gameID int64, name string, experience int, cost float64, idem string) (game.HireResult[game.Salesperson], error) {
	var out game.HireResult[game.Salesperson]
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/salespeople", map[string]any{
		"game_id":    gameID,
		"name":       name,
		"experience": experience,
		"cost":       cost,
	}, &out, idem)
	return out, err
}

func (c *Client) StartSelling(ctx context.Context, salespersonID int64) (game.Salesperson, error) {
	var out game.Salesperson
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/salespeople/%d/sell", salespersonID), nil, &out, "")
	return out, err
}

func (c *Client) FireSalesperson(ctx context.Context, salespersonID int64) error {
	return c.jsonRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/salespeople/%d", salespersonID), nil, nil, "")
}

func (c *Client) ListProjects(ctx context.Context, gameID int64) ([]game.Project, error) {
	var out struct {
		Projects []game.Project `json:"projects"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/projects?game_id=%d", gameID), nil, &out, "")
	return out.Projects, err
}

func (c *Client) CreateProject(ctx context.Context, gameID int64, name string, complexity int, value float64, idem string) (game.Project, error) {
	var out game.Project
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/projects", map[string]any{
		"game_id":    gameID,
		"name":       name,
		"complexity": complexity,
		"value":      value,
	}, &out, idem)
	return out, err
}

func (c *Client) AssignDeveloper(ctx context.Context, projectID, developerID int64) (game.AssignResult, error) {
	var out game.AssignResult
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/projects/%d/assign", projectID), map[string]any{
		"developer_id": developerID,
	}, &out, "")
	return out, err
}

func (c *Client) DeleteProject(ctx context.Context, projectID int64) error {
	return c.jsonRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/projects/%d", projectID), nil, nil, "")
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
