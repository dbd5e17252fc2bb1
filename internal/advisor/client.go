// Package advisor calls the external adequacy scoring service.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/terra-clan/clinical-sim/internal/treatment"
)

const evaluatePath = "/v1/adequacy/evaluate"

// Options configures the advisor client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client implements treatment.Advisor over HTTP
type Client struct {
	httpClient *resty.Client
}

var _ treatment.Advisor = (*Client)(nil)

type evaluateResponse struct {
	Multiplier *float64 `json:"multiplier"`
	Rationale  string   `json:"rationale"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates an advisor client. Server errors are retried.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{httpClient: client}
}

// Evaluate asks the advisor how appropriate a treatment is for the case condition
func (c *Client) Evaluate(ctx context.Context, req treatment.AdequacyRequest) (treatment.Verdict, error) {
	var result evaluateResponse
	var apiErr errorResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		Post(evaluatePath)
	if err != nil {
		return treatment.Verdict{}, fmt.Errorf("failed to call advisor: %w", err)
	}

	if resp.IsError() {
		slog.Warn("advisor returned error",
			"status", resp.StatusCode(),
			"treatment_id", req.TreatmentID,
			"error", apiErr.Error,
		)
		return treatment.Verdict{}, fmt.Errorf("advisor error: %s (status: %d)", apiErr.Error, resp.StatusCode())
	}

	if result.Multiplier == nil {
		return treatment.Verdict{}, fmt.Errorf("advisor response has no multiplier")
	}

	return treatment.Verdict{
		Multiplier: *result.Multiplier,
		Rationale:  result.Rationale,
	}, nil
}
