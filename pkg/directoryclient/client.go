/**
 * @description
 * Read-only client for the recipient directory service, which owns users'
 * saved contacts. The recipient resolver merges these results with recent
 * counterparties from the transaction feed.
 *
 * @dependencies
 * - context, encoding/json, net/http, net/url, time: Standard Go libraries.
 */
package directoryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Contact is a saved directory entry for a user.
type Contact struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Channel      string `json:"channel"`
	ChannelValue string `json:"channel_value"`
}

// Client is a client for the directory service API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new directory service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SearchContacts returns the user's saved contacts matching query. An empty
// query returns all contacts.
func (c *Client) SearchContacts(ctx context.Context, userID, query string) ([]Contact, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	if query != "" {
		params.Set("q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/contacts?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create contacts request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-directory-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute contacts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var contacts []Contact
	if err := json.NewDecoder(resp.Body).Decode(&contacts); err != nil {
		return nil, fmt.Errorf("failed to decode contacts response: %w", err)
	}
	return contacts, nil
}
