// Package client is a REST client for the prediction service.
package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"afyaband-ml/internal/service"
	"afyaband-ml/internal/storage"
)

// APIError is a non-2xx reply from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("afyaband: status %d", e.StatusCode)
	}
	return fmt.Sprintf("afyaband: %d %s", e.StatusCode, e.Detail)
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
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

func (c *Client) Info() (service.ServiceInfo, error) {
	var info service.ServiceInfo
	err := c.do(c.rest.R().SetResult(&info), "GET", "/")
	return info, err
}

func (c *Client) Health() (service.HealthResponse, error) {
	var h service.HealthResponse
	err := c.do(c.rest.R().SetResult(&h), "GET", "/health")
	return h, err
}

func (c *Client) Predict(req service.PredictRequest) (service.PredictionResponse, error) {
	var resp service.PredictionResponse
	err := c.do(c.rest.R().SetBody(req).SetResult(&resp), "POST", "/predict")
	return resp, err
}

func (c *Client) PredictEnsemble(req service.PredictRequest) (service.EnsembleResponse, error) {
	var resp service.EnsembleResponse
	err := c.do(c.rest.R().SetBody(req).SetResult(&resp), "POST", "/predict/ensemble")
	return resp, err
}

// History lists a device's stored assessments. A zero limit uses the server default.
func (c *Client) History(deviceID string, limit int) ([]storage.AssessmentRecord, error) {
	params := map[string]string{}
	if deviceID != "" {
		params["deviceId"] = deviceID
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var records []storage.AssessmentRecord
	err := c.do(c.rest.R().SetQueryParams(params).SetResult(&records), "GET", "/history")
	return records, err
}

// HistoryRange lists a device's assessments between from and to, oldest
// first. Zero times leave that bound open.
func (c *Client) HistoryRange(deviceID string, from, to time.Time, limit int) ([]storage.AssessmentRecord, error) {
	params := map[string]string{}
	if deviceID != "" {
		params["deviceId"] = deviceID
	}
	if !from.IsZero() {
		params["from"] = from.UTC().Format(time.RFC3339)
	}
	if !to.IsZero() {
		params["to"] = to.UTC().Format(time.RFC3339)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var records []storage.AssessmentRecord
	err := c.do(c.rest.R().SetQueryParams(params).SetResult(&records), "GET", "/history")
	return records, err
}

func (c *Client) do(r *resty.Request, method, path string) error {
	var apiErr service.ErrorResponse
	resp, err := r.SetError(&apiErr).Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Detail: apiErr.Detail}
	}
	return nil
}
