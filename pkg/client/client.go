// Package client is a Go SDK for the clinical simulator API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/terra-clan/clinical-sim/internal/diagnosis"
	"github.com/terra-clan/clinical-sim/internal/models"
)

// Client is a Go SDK for the simulator API. Every call acts as one user.
type Client struct {
	http *resty.Client
}

type config struct {
	httpClient *http.Client
	timeout    time.Duration
	retryCount int
}

// Option configures the client
type Option func(*config)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithRetryCount retries requests that fail with a transport error or a 5xx
func WithRetryCount(count int) Option {
	return func(c *config) {
		c.retryCount = count
	}
}

// NewClient creates a client that authenticates as userID through the X-User-ID header
func NewClient(baseURL, userID string, opts ...Option) *Client {
	cfg := config{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	var rc *resty.Client
	if cfg.httpClient != nil {
		rc = resty.NewWithClient(cfg.httpClient)
	} else {
		rc = resty.New()
	}

	rc.SetBaseURL(baseURL).
		SetTimeout(cfg.timeout).
		SetRetryCount(cfg.retryCount).
		SetHeader("Accept", "application/json").
		SetHeader("X-User-ID", userID).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{http: rc}
}

// APIError is an error envelope returned by the server
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// ErrorCode returns the API error code carried by err, or "" if err is not an API error
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type envelope[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data"`
	Error   *APIError `json:"error"`
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, query map[string]string) (T, error) {
	var env envelope[T]
	var zero T

	req := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() || !env.Success {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "http_error", Message: resp.Status()}
		}
		apiErr.Status = resp.StatusCode()
		return zero, apiErr
	}

	return env.Data, nil
}

type caseList struct {
	Cases []models.CaseSummary `json:"cases"`
}

type badgeList struct {
	Badges []models.Badge `json:"badges"`
}

type sessionList struct {
	Sessions []models.SessionView `json:"sessions"`
}

type treatmentList struct {
	Treatments []models.TreatmentFeedback `json:"treatments"`
}

type historyList struct {
	History []models.HistoryEntry `json:"history"`
}

type awardList struct {
	Badges []models.UserBadgeAward `json:"badges"`
}

type outcomeList struct {
	Outcomes []models.SessionOutcome `json:"outcomes"`
}

// Catalog

// ListCases lists the case catalog. An empty tag lists every case.
func (c *Client) ListCases(ctx context.Context, tag string) ([]models.CaseSummary, error) {
	var query map[string]string
	if tag != "" {
		query = map[string]string{"tag": tag}
	}
	list, err := call[caseList](ctx, c, http.MethodGet, "/api/v1/cases", nil, query)
	return list.Cases, err
}

// GetCase retrieves the trainee-facing view of a case
func (c *Client) GetCase(ctx context.Context, id string) (*models.CaseDetail, error) {
	detail, err := call[models.CaseDetail](ctx, c, http.MethodGet, "/api/v1/cases/"+id, nil, nil)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListBadges lists the badge catalog
func (c *Client) ListBadges(ctx context.Context) ([]models.Badge, error) {
	list, err := call[badgeList](ctx, c, http.MethodGet, "/api/v1/badges", nil, nil)
	return list.Badges, err
}

// Sessions

// CreateSession opens an idle session on a case
func (c *Client) CreateSession(ctx context.Context, caseID string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{CaseID: caseID})
}

// GetSession retrieves a session by ID
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodGet, "/api/v1/sessions/"+id, nil)
}

// ListSessions lists the caller's live sessions
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionView, error) {
	list, err := call[sessionList](ctx, c, http.MethodGet, "/api/v1/sessions", nil, nil)
	return list.Sessions, err
}

// DeleteSession discards a session
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := call[map[string]string](ctx, c, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
	return err
}

// StartSession starts an idle session in the given mode
func (c *Client) StartSession(ctx context.Context, id string, mode models.Mode) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/start", models.StartSessionRequest{Mode: mode})
}

// ToggleSession pauses a running session or resumes a paused one
func (c *Client) ToggleSession(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/toggle", nil)
}

// ResetSession returns a session to idle
func (c *Client) ResetSession(ctx context.Context, id string) (*models.SessionView, error) {
	return c.sessionCall(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/reset", nil)
}

func (c *Client) sessionCall(ctx context.Context, method, path string, body any) (*models.SessionView, error) {
	view, err := call[models.SessionView](ctx, c, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ApplyTreatment applies a treatment and returns its feedback
func (c *Client) ApplyTreatment(ctx context.Context, id, treatmentID string) (*models.TreatmentFeedback, error) {
	fb, err := call[models.TreatmentFeedback](ctx, c, http.MethodPost, "/api/v1/sessions/"+id+"/treatments",
		models.ApplyTreatmentRequest{TreatmentID: treatmentID}, nil)
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

// Treatments returns the session's treatment log
func (c *Client) Treatments(ctx context.Context, id string) ([]models.TreatmentFeedback, error) {
	list, err := call[treatmentList](ctx, c, http.MethodGet, "/api/v1/sessions/"+id+"/treatments", nil, nil)
	return list.Treatments, err
}

// History returns the per-tick snapshots of a session
func (c *Client) History(ctx context.Context, id string) ([]models.HistoryEntry, error) {
	list, err := call[historyList](ctx, c, http.MethodGet, "/api/v1/sessions/"+id+"/history", nil, nil)
	return list.History, err
}

// Hint marks the session as assisted and returns the next unmet goal
func (c *Client) Hint(ctx context.Context, id string) (string, error) {
	resp, err := call[models.HintResponse](ctx, c, http.MethodPost, "/api/v1/sessions/"+id+"/hint", nil, nil)
	return resp.Hint, err
}

// Challenge returns the diagnostic board
func (c *Client) Challenge(ctx context.Context, id string) (*diagnosis.Board, error) {
	board, err := call[diagnosis.Board](ctx, c, http.MethodGet, "/api/v1/sessions/"+id+"/challenge", nil, nil)
	if err != nil {
		return nil, err
	}
	return &board, nil
}

// Diagnose submits an answer to the diagnostic challenge
func (c *Client) Diagnose(ctx context.Context, id, optionID string) (*diagnosis.Result, error) {
	result, err := call[diagnosis.Result](ctx, c, http.MethodPost, "/api/v1/sessions/"+id+"/diagnosis",
		models.DiagnoseRequest{OptionID: optionID}, nil)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// User

// OutcomeOptions contains options for listing outcomes
type OutcomeOptions struct {
	CaseID string
	Status models.SessionStatus
	Limit  int
	Offset int
}

// MyBadges lists badges awarded to the caller
func (c *Client) MyBadges(ctx context.Context) ([]models.UserBadgeAward, error) {
	list, err := call[awardList](ctx, c, http.MethodGet, "/api/v1/users/me/badges", nil, nil)
	return list.Badges, err
}

// MyOutcomes lists the caller's completed sessions
func (c *Client) MyOutcomes(ctx context.Context, opts OutcomeOptions) ([]models.SessionOutcome, error) {
	query := make(map[string]string)
	if opts.CaseID != "" {
		query["case_id"] = opts.CaseID
	}
	if opts.Status != "" {
		query["status"] = string(opts.Status)
	}
	if opts.Limit > 0 {
		query["limit"] = strconv.Itoa(opts.Limit)
	}
	if opts.Offset > 0 {
		query["offset"] = strconv.Itoa(opts.Offset)
	}

	list, err := call[outcomeList](ctx, c, http.MethodGet, "/api/v1/users/me/outcomes", nil, query)
	return list.Outcomes, err
}

// MyStats returns the caller's aggregate statistics
func (c *Client) MyStats(ctx context.Context) (*models.HistoricalStats, error) {
	stats, err := call[models.HistoricalStats](ctx, c, http.MethodGet, "/api/v1/users/me/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks the API health
func (c *Client) Health(ctx context.Context) error {
	_, err := call[map[string]string](ctx, c, http.MethodGet, "/health", nil, nil)
	return err
}
