// Package labelclient implements the external reputation-label lookup: a
// plain *http.Client, a hand-built request, and status/error handling by
// logging and moving on.
package labelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Client looks up an address's external reputation label over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a label client against baseURL (a block-explorer or
// reputation-feed API), with a conservative timeout to bound how long the
// decision engine waits on an external fact.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type labelResponse struct {
	Label string `json:"label"`
}

// Lookup returns the reputation label attached to address, or "" if none
// is known. Any transport or decode failure is swallowed and logged — an
// external-lookup error defaults to "no evidence", never to a
// confirmed-attacker signal.
func (c *Client) Lookup(ctx context.Context, address string) (string, error) {
	url := fmt.Sprintf("%s/labels/%s", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("[LabelClient] failed to build request for %s: %v", address, err)
		return "", nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[LabelClient] lookup failed for %s: %v", address, err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 400 {
		log.Printf("[LabelClient] %s returned status %d", address, resp.StatusCode)
		return "", nil
	}

	var out labelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("[LabelClient] failed to decode response for %s: %v", address, err)
		return "", nil
	}
	return out.Label, nil
}
