// Package e2e drives a running slipgate server end to end over HTTP. Point
// SLIPGATE_URL at the server under test and run the godog suites.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TestContext carries shared state between steps: the HTTP client, the last
// response, and values captured by earlier steps.
type TestContext struct {
	baseURL    string
	client     *http.Client
	adminToken string

	lastStatus int
	lastBody   map[string]any
}

func NewTestContext() *TestContext {
	baseURL := os.Getenv("SLIPGATE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &TestContext{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		adminToken: os.Getenv("SLIPGATE_ADMIN_TOKEN"),
	}
}

// POST sends a JSON body to the path and records the response.
func (tc *TestContext) POST(path string, body any, authenticated bool) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+tc.adminToken)
	}
	return tc.do(req)
}

// GET fetches the path and records the response.
func (tc *TestContext) GET(path string, authenticated bool) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+tc.adminToken)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody = nil
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &tc.lastBody)
	}
	return nil
}

// ResponseField walks a dotted path through the last response body.
func (tc *TestContext) ResponseField(field string) (any, error) {
	v, ok := tc.lastBody[field]
	if !ok {
		return nil, fmt.Errorf("field %q not present in response", field)
	}
	return v, nil
}

// AssertStatus fails when the last response status differs.
func (tc *TestContext) AssertStatus(expected int) error {
	if tc.lastStatus != expected {
		return fmt.Errorf("expected status %d, got %d (body: %v)", expected, tc.lastStatus, tc.lastBody)
	}
	return nil
}
