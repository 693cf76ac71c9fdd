// Package client provides a Go client for interacting with the llahdb API.
//
// It covers learning the discretization, registering documents, point
// lookups (single and batched) and system administration (save, reset).
//
// The client handles HTTP communication, JSON serialization/deserialization, and
// standardized error handling.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Custom Errors ---

// APIError represents an error returned by the llahdb API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Response Structs ---

// Point is a 2D point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DocumentInfo describes a registered document.
type DocumentInfo struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Landmarks int    `json:"landmarks"`
	Features  int    `json:"features"`
}

// Document is a registered document with its landmarks.
type Document struct {
	DocumentInfo
	Points []Point `json:"points"`
}

// Correspondence links a document landmark to the query point matched to it.
type Correspondence struct {
	Landmark int32 `json:"landmark"`
	Location Point `json:"location"`
	Dot      int32 `json:"dot"`
}

// Match is one recognised document.
type Match struct {
	Document       DocumentInfo     `json:"document"`
	Hits           uint64           `json:"hits"`
	Score          float64          `json:"score"`
	SeenLandmarks  int              `json:"seen_landmarks"`
	VotedLandmarks int              `json:"voted_landmarks"`
	Matches        []Correspondence `json:"matches"`
}

// Stats summarises the server state.
type Stats struct {
	Documents int            `json:"documents"`
	Features  int            `json:"features"`
	Buckets   int            `json:"buckets"`
	Dirty     int64          `json:"dirty"`
	LastSave  time.Time      `json:"last_save"`
	Config    map[string]any `json:"config"`
}

type lookupResponse struct {
	Results []Match `json:"results"`
}

type batchLookupResponse struct {
	Results []lookupResponse `json:"results"`
}

type documentsResponse struct {
	Documents []DocumentInfo `json:"documents"`
}

// --- Client ---

// Client is the Go client for interacting with llahdb.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new llahdb client. An empty apiKey sends no Authorization header.
func New(host string, port int, apiKey string) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// jsonRequest is a helper method to execute all requests to the API.
// It handles JSON serialization, HTTP calls, and error management.
func (c *Client) jsonRequest(method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}

// --- Document Methods ---

// Learn trains the server's discretization on a corpus of point sets.
// It must run before the first document is registered.
func (c *Client) Learn(pointSets [][]Point) error {
	_, err := c.jsonRequest(http.MethodPost, "/llah/learn", map[string]any{"point_sets": pointSets})
	return err
}

// Register stores a new document. An empty name lets the server generate one.
func (c *Client) Register(name string, points []Point) (*DocumentInfo, error) {
	payload := map[string]any{"name": name, "points": points}
	respBody, err := c.jsonRequest(http.MethodPost, "/llah/documents", payload)
	if err != nil {
		return nil, err
	}
	var info DocumentInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("failed to parse register response: %w", err)
	}
	return &info, nil
}

// Documents lists registered documents ordered by name, optionally filtered by prefix.
func (c *Client) Documents(prefix string) ([]DocumentInfo, error) {
	endpoint := "/llah/documents"
	if prefix != "" {
		endpoint += "?prefix=" + url.QueryEscape(prefix)
	}
	respBody, err := c.jsonRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var resp documentsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse documents response: %w", err)
	}
	return resp.Documents, nil
}

// Document retrieves a single document and its landmarks.
func (c *Client) Document(name string) (*Document, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/llah/documents/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document response: %w", err)
	}
	return &doc, nil
}

// --- Lookup Methods ---

// Lookup recognises the documents a set of observed points belongs to,
// best first. maxHitsPerPoint 0 uses the server default.
func (c *Client) Lookup(points []Point, maxHitsPerPoint uint32) ([]Match, error) {
	payload := map[string]any{"points": points}
	if maxHitsPerPoint > 0 {
		payload["max_hits_per_point"] = maxHitsPerPoint
	}
	respBody, err := c.jsonRequest(http.MethodPost, "/llah/lookup", payload)
	if err != nil {
		return nil, err
	}
	var resp lookupResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse lookup response: %w", err)
	}
	return resp.Results, nil
}

// LookupBatch runs several lookups in one request. Results are in query order.
func (c *Client) LookupBatch(queries [][]Point, maxHitsPerPoint uint32) ([][]Match, error) {
	payload := map[string]any{"queries": queries}
	if maxHitsPerPoint > 0 {
		payload["max_hits_per_point"] = maxHitsPerPoint
	}
	respBody, err := c.jsonRequest(http.MethodPost, "/llah/lookup/batch", payload)
	if err != nil {
		return nil, err
	}
	var resp batchLookupResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse batch lookup response: %w", err)
	}
	out := make([][]Match, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Results
	}
	return out, nil
}

// --- System Methods ---

// Stats returns a summary of the server state.
func (c *Client) Stats() (*Stats, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/llah/stats", nil)
	if err != nil {
		return nil, err
	}
	var st Stats
	if err := json.Unmarshal(respBody, &st); err != nil {
		return nil, fmt.Errorf("failed to parse stats response: %w", err)
	}
	return &st, nil
}

// Save asks the server to write a snapshot and truncate its journal.
func (c *Client) Save() error {
	_, err := c.jsonRequest(http.MethodPost, "/system/save", nil)
	return err
}

// Reset removes every document. The learned discretization is kept.
func (c *Client) Reset() error {
	_, err := c.jsonRequest(http.MethodPost, "/system/reset", nil)
	return err
}
