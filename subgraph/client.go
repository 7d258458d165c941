package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/inter"
)

const (
	// DefaultTimeout bounds a complete subgraph round trip.
	DefaultTimeout = 25 * time.Second

	// maxDiagnostic caps the response excerpt embedded in errors.
	maxDiagnostic = 400
)

// Querier runs a query against an index endpoint and decodes its data object.
type Querier interface {
	Request(ctx context.Context, url string, q Query, out interface{}) error
}

// Client is the HTTP implementation of Querier.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	log        logrus.FieldLogger
}

var _ Querier = (*Client)(nil)

// NewClient builds a client with a pooled transport. Timeouts are applied per
// request through the context.
func NewClient(timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
			},
		},
		timeout: timeout,
		log:     log,
	}
}

type requestBody struct {
	Query string `json:"query"`
}

type responseBody struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// Request POSTs the query and decodes the response's data member into out.
// Transport failures, non-2xx statuses, bodies that are not JSON and
// non-empty errors members all fail with an UpstreamTransport error carrying
// the endpoint, the status and a truncated excerpt of the response.
func (c *Client) Request(ctx context.Context, url string, q Query, out interface{}) error {
	body, err := json.Marshal(requestBody{Query: q.String()})
	if err != nil {
		return fmt.Errorf("marshal subgraph query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create subgraph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return inter.Upstream(err, "subgraph request to %s", url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return inter.Upstream(err, "read subgraph response from %s", url)
	}

	var parsed responseBody
	if err := json.Unmarshal(data, &parsed); err != nil {
		return diagnostic(url, resp.StatusCode, string(data))
	}
	if hasErrors(parsed.Errors) {
		return diagnostic(url, resp.StatusCode, string(parsed.Errors))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return diagnostic(url, resp.StatusCode, string(data))
	}

	c.log.WithFields(logrus.Fields{"url": url, "entity": q.Entity}).Trace("Subgraph query served")

	if len(parsed.Data) == 0 || string(parsed.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(parsed.Data, out); err != nil {
		return inter.Upstream(err, "decode subgraph data from %s", url)
	}
	return nil
}

func hasErrors(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte("[]"))
}

func diagnostic(url string, status int, excerpt string) error {
	if len(excerpt) > maxDiagnostic {
		excerpt = excerpt[:maxDiagnostic]
	}
	return inter.Upstream(
		fmt.Errorf("URL: %s, Status: %d, Response: %s", url, status, excerpt),
		"errors found in subgraph request",
	)
}
