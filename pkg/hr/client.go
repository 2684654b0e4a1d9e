package hr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls the HR service's own API on behalf of an authenticated
// caller, forwarding the caller's bearer token unchanged.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an HR API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// DaysOff returns the caller's own days-off balance via POST /daysOff,
// authenticated with the forwarded token.
func (c *Client) DaysOff(ctx context.Context, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/daysOff", bytes.NewReader(nil))
	if err != nil {
		return 0, fmt.Errorf("creating daysOff request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling HR service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HR service returned status %d", resp.StatusCode)
	}

	var body struct {
		DaysOffAvailable int `json:"days_off_available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding HR response: %w", err)
	}
	return body.DaysOffAvailable, nil
}
