package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
)

const (
	BaseURL = "https://www.strava.com/api/v3"
)

// Client reads route details from the Strava API. Authentication is
// carried by the http.Client (an oauth2 client built from the stored token).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Strava client
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    BaseURL,
		httpClient: httpClient,
	}
}

// SetBaseURL overrides the API endpoint (used by tests)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// Route is the subset of the Strava route object we use
type Route struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Distance      float64 `json:"distance"`       // metres
	ElevationGain float64 `json:"elevation_gain"` // metres
	Type          int     `json:"type"`           // 1 ride, 2 run
}

// GetRoute returns a route by id
func (c *Client) GetRoute(ctx context.Context, id string) (*Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/routes/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var route Route
	if err := json.Unmarshal(body, &route); err != nil {
		return nil, fmt.Errorf("unmarshal route: %w", err)
	}
	return &route, nil
}

// RouteStats returns distance and elevation in the units used by messages
func (c *Client) RouteStats(ctx context.Context, id string) (*domain.RouteStats, error) {
	r, err := c.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Distance <= 0 {
		return nil, fmt.Errorf("route %s has no distance: %w", id, domain.ErrUnavailable)
	}
	return &domain.RouteStats{
		DistanceKm: r.Distance / 1000,
		ElevationM: r.ElevationGain,
	}, nil
}
