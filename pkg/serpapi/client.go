// Package serpapi provides a client for the SerpAPI search endpoint.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoAPIKey is returned when neither the request nor the client has a key.
var ErrNoAPIKey = eris.New("serpapi: no api key")

// Client defines the SerpAPI operations.
type Client interface {
	// Search runs a query and returns the parsed organic results.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// HasKey reports whether a default API key is configured.
	HasKey() bool
}

// SearchRequest is one search call.
type SearchRequest struct {
	Query string
	// APIKey overrides the client's default key when set.
	APIKey string
	// Engine defaults to "google".
	Engine string
	// Num is the result count, default 10.
	Num int
}

// SearchResponse is the subset of the SerpAPI response we use.
type SearchResponse struct {
	SearchMetadata SearchMetadata  `json:"search_metadata"`
	OrganicResults []OrganicResult `json:"organic_results"`
	// Error is set when SerpAPI reports a problem in a 200 response, such as
	// an empty result page.
	Error string `json:"error,omitempty"`
}

// SearchMetadata identifies the search on SerpAPI's side.
type SearchMetadata struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OrganicResult is a single organic search result.
type OrganicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}

// APIError is a non-200 response from SerpAPI.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serpapi: status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the SerpAPI client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a SerpAPI client with a default API key, which may be
// empty when every request carries its own.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://serpapi.com",
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) HasKey() bool { return c.apiKey != "" }

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	key := req.APIKey
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	engine := req.Engine
	if engine == "" {
		engine = "google"
	}
	num := req.Num
	if num <= 0 {
		num = 10
	}

	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("api_key", key)
	params.Set("engine", engine)
	params.Set("num", strconv.Itoa(num))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response body")
	}

	var result SearchResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode != http.StatusOK {
		msg := result.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(string(body), 200)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, eris.Wrap(decodeErr, "serpapi: unmarshal response")
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
