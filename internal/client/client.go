// Package client calls a running selection service.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bayesian-melody-predictor/internal/server"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("selection service: %d %s", e.Status, e.Message)
}

// Select posts one selection request.
func (c *Client) Select(ctx context.Context, req server.SelectRequest) (server.SelectResponse, error) {
	var out server.SelectResponse
	var apiErr server.ErrorResponse

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.base + "/select")
	if err != nil {
		return server.SelectResponse{}, err
	}
	if resp.IsError() {
		return server.SelectResponse{}, &APIError{Status: resp.StatusCode(), Message: apiErr.Error, RequestID: apiErr.RequestID}
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var out server.HealthResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(c.base + "/health")
	if err != nil {
		return server.HealthResponse{}, err
	}
	if resp.IsError() {
		return out, &APIError{Status: resp.StatusCode(), Message: out.Status}
	}
	return out, nil
}

func (c *Client) ModelInfo(ctx context.Context) (server.ModelInfoResponse, error) {
	var out server.ModelInfoResponse
	var apiErr server.ErrorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get(c.base + "/model/info")
	if err != nil {
		return server.ModelInfoResponse{}, err
	}
	if resp.IsError() {
		return server.ModelInfoResponse{}, &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return out, nil
}
