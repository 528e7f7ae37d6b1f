// Package apiclient is a client for the parts of the FreshBasket admin API that the notification sync
// service uses.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ClientIDHeader carries the identifier of the service instance on every request.
const ClientIDHeader = "X-Client-ID"

const defaultTimeout = 30 * time.Second

// Error is returned when the API responds with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("admin API returned status %d: %s", e.StatusCode, e.Message)
}

// Client is an admin API client authenticated as a single administrator.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	token string
}

// New returns a new client. A private metrics registry is used if m is nil.
func New(settings common.APISettings, clientID string, m *metrics.Metrics) *Client {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(settings.BaseURL, "/"),
		clientID:   clientID,
		metrics:    m,
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the bearer token sent with every request.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// errorResponse is the body the API sends along with most error statuses.
type errorResponse struct {
	Message string `json:"message"`
}

// doJSON sends a request with an optional JSON body and decodes the JSON response into result if
// result is non-nil.
func (c *Client) doJSON(ctx context.Context, operation, method, path string, body, result interface{}) (err error) {
	defer func() {
		c.metrics.APIRequests.WithLabelValues(operation, metrics.Outcome(err)).Inc()
	}()

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "unable to encode the request body")
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, "unable to create the request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set(ClientIDHeader, c.clientID)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		respBody, _ := io.ReadAll(resp.Body)
		var decoded errorResponse
		if json.Unmarshal(respBody, &decoded) == nil {
			apiErr.Message = decoded.Message
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.Wrap(err, "unable to decode the response body")
		}
	}
	return nil
}
