// Package client talks to a running model server.
package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"tabml/internal/dataset"
	"tabml/internal/model"
	"tabml/internal/registry"
	"tabml/internal/server"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Message)
}

// NotFound reports whether the server did not know the model or route.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: base, rest: r}
}

// Predict classifies one record with the active version of id. An empty
// target uses the column the model was trained on.
func (c *Client) Predict(id string, record dataset.Record, target string) (*server.PredictResponse, error) {
	var out server.PredictResponse
	err := c.post("/predict/{id}", id, server.PredictRequest{Record: record, Target: target}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PredictBatch(id string, records []dataset.Record, target string) (*server.BatchResponse, error) {
	var out server.BatchResponse
	err := c.post("/predict/{id}/batch", id, server.BatchRequest{Records: records, Target: target}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Models() ([]model.Metadata, error) {
	var out []model.Metadata
	if err := c.get("/models", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Model(id string) (*model.Metadata, error) {
	var out model.Metadata
	if err := c.get("/models/{id}", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Versions(id string) ([]registry.Version, error) {
	var out []registry.Version
	if err := c.get("/models/{id}/versions", id, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rollback reactivates the previous version of id and returns it.
func (c *Client) Rollback(id string) (string, error) {
	var out server.RollbackResponse
	if err := c.post("/models/{id}/rollback", id, nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

func (c *Client) Health() (*server.HealthResponse, error) {
	var out server.HealthResponse
	if err := c.get("/health", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(path, id string, result any) error {
	req := c.rest.R().SetResult(result).SetError(&errorBody{})
	if id != "" {
		req.SetPathParam("id", id)
	}
	resp, err := req.Get(c.base + path)
	return check(resp, err)
}

func (c *Client) post(path, id string, body, result any) error {
	req := c.rest.R().
		SetPathParam("id", id).
		SetResult(result).
		SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(c.base + path)
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		msg := resp.String()
		if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
			msg = body.Error
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}
