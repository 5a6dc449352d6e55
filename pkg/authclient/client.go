/**
 * @description
 * Client for the authorization service that holds users' transaction PIN
 * secrets. The transfer-service never stores a PIN; it forwards the entered
 * code for verification immediately before settlement.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a client for the authorization service API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new authorization service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type verifyPINRequest struct {
	Subject string `json:"subject"`
	Code    string `json:"code"`
}

type verifyPINResponse struct {
	Verified bool `json:"verified"`
}

// VerifyPIN checks the entered code against the stored secret for subject.
// It returns (false, err) on any transport or service failure; callers are
// expected to treat that as a denial.
func (c *Client) VerifyPIN(ctx context.Context, subject, code string) (bool, error) {
	body, err := json.Marshal(verifyPINRequest{Subject: subject, Code: code})
	if err != nil {
		return false, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/pins/verify", bytes.NewBuffer(body))
	if err != nil {
		return false, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-auth-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("pin verification returned status %d", resp.StatusCode)
	}

	var result verifyPINResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return result.Verified, nil
}
