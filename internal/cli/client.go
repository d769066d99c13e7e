package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"relink/internal/gateway/handlers"
)

// APIClient talks to a running daemon's status API.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient creates a client for baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		// a forced reconnect waits for one probe round trip
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Get decodes GET path into out.
func (c *APIClient) Get(path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(http.MethodGet, u, nil, out)
}

// Post sends body as JSON and decodes the answer into out.
func (c *APIClient) Post(path string, body, out any) error {
	return c.do(http.MethodPost, c.baseURL+path, body, out)
}

// Patch sends body as JSON and decodes the answer into out.
func (c *APIClient) Patch(path string, body, out any) error {
	return c.do(http.MethodPatch, c.baseURL+path, body, out)
}

func (c *APIClient) do(method, u string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er handlers.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil {
			apiErr.Code, apiErr.Message = er.Error.Code, er.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
