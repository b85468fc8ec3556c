package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestClient calls a running API instance with Basic Auth credentials.
type TestClient struct {
	BaseURL    string
	Email      string
	Password   string
	HTTPClient *http.Client
}

// NewTestClient reads the target URL from BILET_API_URL. Tests must skip
// when it is unset.
func NewTestClient(email, password string) *TestClient {
	return &TestClient{
		BaseURL:  os.Getenv("BILET_API_URL"),
		Email:    email,
		Password: password,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RequireAPI skips the test when no running API is configured.
func RequireAPI(t *testing.T) {
	t.Helper()
	if os.Getenv("BILET_API_URL") == "" {
		t.Skip("BILET_API_URL not set, skipping integration test")
	}
}

func (c *TestClient) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.SetBasicAuth(c.Email, c.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	return resp
}

// Post sends a JSON POST and decodes the response into out when non-nil.
func (c *TestClient) Post(t *testing.T, path string, body, out interface{}) int {
	t.Helper()
	resp := c.do(t, http.MethodPost, path, body)
	defer resp.Body.Close()
	decode(t, resp, out)
	return resp.StatusCode
}

// Get sends a GET and decodes the response into out when non-nil.
func (c *TestClient) Get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp := c.do(t, http.MethodGet, path, nil)
	defer resp.Body.Close()
	decode(t, resp, out)
	return resp.StatusCode
}

// Delete sends a DELETE.
func (c *TestClient) Delete(t *testing.T, path string) int {
	t.Helper()
	resp := c.do(t, http.MethodDelete, path, nil)
	defer resp.Body.Close()
	return resp.StatusCode
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if out == nil {
		return
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", string(data), err)
	}
}

// UserCredentials returns the seeded demo credentials for user n.
func UserCredentials(n int) (string, string) {
	return fmt.Sprintf("user%d@example.com", n), fmt.Sprintf("password%d", n)
}
