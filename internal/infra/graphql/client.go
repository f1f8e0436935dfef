// Package graphql is a client for the music catalogue's structured-query API.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

const (
	// DefaultEndpoint is the GraphQL path on the catalogue service.
	DefaultEndpoint = "/api/graphql"

	// DefaultTimeout for catalogue requests
	DefaultTimeout = 10 * time.Second
)

// ErrQuery marks errors reported by the GraphQL server in the response body.
var ErrQuery = errors.New("graphql query failed")

// QueryError carries the server-reported error messages of one request.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	return strings.Join(e.Messages, ", ")
}

// Unwrap lets errors.Is match ErrQuery.
func (e *QueryError) Unwrap() error {
	return ErrQuery
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client talks to the catalogue's GraphQL endpoint.
type Client struct {
	http     *resty.Client
	endpoint string
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithEndpoint sets the GraphQL path relative to the base URL.
func WithEndpoint(path string) Option {
	return func(c *Client) {
		c.endpoint = path
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.http.SetHeader(key, value)
	}
}

// NewClient creates a catalogue client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		endpoint: DefaultEndpoint,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// Execute runs query with variables and decodes the "data" object into out.
// Server-reported errors are joined into one *QueryError.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, out any) error {
	if variables == nil {
		variables = map[string]any{}
	}

	var body response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{Query: query, Variables: variables}).
		SetResult(&body).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("graphql request: unexpected status %d", resp.StatusCode())
	}

	if len(body.Errors) > 0 {
		qe := &QueryError{}
		for _, e := range body.Errors {
			qe.Messages = append(qe.Messages, e.Message)
		}
		log.Warn().Str("errors", qe.Error()).Msg("GraphQL query returned errors")
		return qe
	}

	if out == nil {
		return nil
	}
	if len(body.Data) == 0 || string(body.Data) == "null" {
		return fmt.Errorf("graphql response has no data")
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
