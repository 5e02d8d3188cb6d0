package gateways

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go-storefront/models"
)

const maxResponseBytes = 1 << 20

// StatusError is a 4xx answer from a gateway. The body is kept for logs only.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway answered %d", e.Code)
}

type response struct {
	status int
	body   []byte
}

// Caller sends gateway requests through a circuit breaker. Transport failures,
// 5xx, 429 and an open breaker all surface as models.ErrProviderUnavailable.
type Caller struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
}

func NewCaller(name string, timeout time.Duration) *Caller {
	return NewCallerWithClient(name, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

func NewCallerWithClient(name string, client *http.Client) *Caller {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("gateway breaker name=%s from=%s to=%s", name, from, to)
		},
	}
	return &Caller{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*response](settings),
	}
}

// HTTPClient is the traced client SDK backends send through.
func (c *Caller) HTTPClient() *http.Client {
	return c.client
}

// Invoke runs an SDK call through the breaker. statusOf reports the HTTP status
// the gateway answered a failed call with, or 0 when no answer arrived; 4xx
// answers come back as *StatusError and do not count against the breaker.
func (c *Caller) Invoke(call func() error, statusOf func(error) int) error {
	resp, err := c.breaker.Execute(func() (*response, error) {
		err := call()
		if err == nil {
			return &response{status: http.StatusOK}, nil
		}
		code := statusOf(err)
		if code >= http.StatusBadRequest && code < http.StatusInternalServerError && code != http.StatusTooManyRequests {
			return &response{status: code, body: []byte(err.Error())}, nil
		}
		return nil, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Printf("gateway breaker rejected sdk call name=%s", c.breaker.Name())
		}
		return models.ErrProviderUnavailable.Wrap(err)
	}
	if resp.status >= http.StatusBadRequest {
		return &StatusError{Code: resp.status, Body: string(resp.body)}
	}
	return nil
}

// Do sends req and decodes a 2xx JSON body into out.
func (c *Caller) Do(req *http.Request, out any) error {
	resp, err := c.breaker.Execute(func() (*response, error) {
		httpResp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read gateway response: %w", err)
		}
		if httpResp.StatusCode >= http.StatusInternalServerError || httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("gateway answered %d", httpResp.StatusCode)
		}
		return &response{status: httpResp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Printf("gateway breaker rejected request name=%s url=%s", c.breaker.Name(), req.URL.Path)
		}
		return models.ErrProviderUnavailable.Wrap(err)
	}

	if resp.status >= http.StatusBadRequest {
		return &StatusError{Code: resp.status, Body: string(resp.body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return models.ErrProviderUnavailable.Wrap(fmt.Errorf("decode gateway response: %w", err))
	}
	return nil
}
