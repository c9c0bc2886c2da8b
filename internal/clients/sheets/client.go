package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	BaseURL = "https://docs.google.com/spreadsheets/d/"
)

var sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([^/]+)`)

// Client reads a sheet tab through the Google Sheets CSV export
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new sheets client. A nil httpClient gets a default
// with a timeout; pass the Google OAuth client to read private sheets.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    BaseURL,
		httpClient: httpClient,
	}
}

// SetBaseURL overrides the export endpoint (used by tests)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// WithHTTPClient returns a copy of the client using a different transport
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.httpClient = httpClient
	return &cp
}

// CSVURL builds the gviz CSV export URL for a tab
func (c *Client) CSVURL(spreadsheetID, tab string) string {
	return c.baseURL + url.PathEscape(spreadsheetID) + "/gviz/tq?tqx=out:csv&sheet=" + url.QueryEscape(tab)
}

// FetchRows downloads the tab and returns all CSV records, header first
func (c *Client) FetchRows(ctx context.Context, spreadsheetID, tab string) ([][]string, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("no spreadsheet id configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CSVURL(spreadsheetID, tab), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sheet export error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// A private sheet answers with the Google sign-in page instead of CSV
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		return nil, fmt.Errorf("sheet is not shared as 'Anyone with the link can view'")
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// ExtractSpreadsheetID accepts a full sheet URL or a bare id
func ExtractSpreadsheetID(input string) string {
	input = strings.TrimSpace(input)
	if m := sheetURLPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return input
}
