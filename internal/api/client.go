package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AkanHealth/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TokenSource supplies the current access token; empty means unauthenticated.
// Implemented by session.Manager.
type TokenSource interface {
	Token() string
}

// Client is the single gateway for every network call the app makes. It
// attaches the bearer token, normalizes all failures to *Error, and records
// request telemetry. It holds no conversation state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewClient creates an API client against the given base URL.
func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		tokens:     tokens,
		logger:     logger,
		tracer:     otel.Tracer("akanhealth/api"),
		meter:      otel.Meter("akanhealth/api"),
	}
}

// requestSpec describes one HTTP call for do.
type requestSpec struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string      // empty leaves Content-Type unset (multipart boundary case is pre-set)
	header      http.Header // caller-supplied headers, merged last so the caller wins
	noAuth      bool        // authentication endpoints never carry a bearer token
}

// do performs the request and decodes a 2xx body into out. An empty or
// non-JSON success body is tolerated and leaves out untouched.
func (c *Client) do(ctx context.Context, spec requestSpec, out any) *Error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("api %s %s", spec.method, spec.path))
	defer span.End()

	target := c.baseURL + spec.path
	if len(spec.query) > 0 {
		target += "?" + spec.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, target, spec.body)
	if err != nil {
		return networkError(err)
	}

	if spec.contentType != "" {
		req.Header.Set("Content-Type", spec.contentType)
	}
	for key, values := range spec.header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if !spec.noAuth && req.Header.Get("Authorization") == "" {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed before a response arrived", "method", spec.method, "path", spec.path, "error", err)
		return networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	c.recordDuration(ctx, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyFailure(resp.StatusCode, body)
		c.logger.Warn("request failed", "method", spec.method, "path", spec.path,
			"status", resp.StatusCode, "kind", apiErr.Kind)
		return apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			// Non-JSON success bodies are treated as empty.
			c.logger.Debug("ignoring non-JSON response body", "path", spec.path, "error", err)
		}
	}
	return nil
}

func (c *Client) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(d.Milliseconds()))
	}
}

// classifyFailure maps a non-2xx response to the error taxonomy.
func classifyFailure(status int, body []byte) *Error {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	if status == http.StatusUnprocessableEntity {
		if msg := joinFieldErrors(payload.Detail); msg != "" {
			return &Error{Kind: ValidationFailure, HTTPStatus: status, Message: msg}
		}
		return &Error{Kind: ValidationFailure, HTTPStatus: status, Message: detailString(payload.Detail, payload.Message, status)}
	}

	return &Error{Kind: HTTPFailure, HTTPStatus: status, Message: detailString(payload.Detail, payload.Message, status)}
}

// joinFieldErrors aggregates a structured 422 detail list into one message.
func joinFieldErrors(detail json.RawMessage) string {
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(detail, &items); err != nil {
		return ""
	}
	msgs := make([]string, 0, len(items))
	for _, item := range items {
		if item.Msg != "" {
			msgs = append(msgs, item.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}

func detailString(detail json.RawMessage, message string, status int) string {
	var s string
	if err := json.Unmarshal(detail, &s); err == nil && s != "" {
		return s
	}
	if message != "" {
		return message
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// encodingError covers failures assembling a request body before any network
// I/O happens; NetworkFailure is reserved for requests that left the client.
func encodingError(err error) *Error {
	return &Error{Kind: ValidationFailure, Message: fmt.Sprintf("failed to encode request body: %v", err)}
}

func jsonBody(v any) (io.Reader, *Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, encodingError(err)
	}
	return bytes.NewReader(data), nil
}

// Login exchanges credentials for a token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, *Error) {
	body, apiErr := jsonBody(map[string]string{"email": email, "password": password})
	if apiErr != nil {
		return nil, apiErr
	}

	var resp AuthResponse
	if apiErr := c.do(ctx, requestSpec{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        body,
		contentType: "application/json",
		noAuth:      true,
	}, &resp); apiErr != nil {
		return nil, apiErr
	}
	return &resp, nil
}

// Signup registers a new account. Some deployments omit the user profile from
// the signup envelope; in that case the profile is fetched with the fresh
// token before returning.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, *Error) {
	body, apiErr := jsonBody(req)
	if apiErr != nil {
		return nil, apiErr
	}

	var resp AuthResponse
	if apiErr := c.do(ctx, requestSpec{
		method:      http.MethodPost,
		path:        "/auth/signup",
		body:        body,
		contentType: "application/json",
		noAuth:      true,
	}, &resp); apiErr != nil {
		return nil, apiErr
	}

	if resp.User == nil && resp.AccessToken != "" {
		user, apiErr := c.meWithToken(ctx, resp.AccessToken)
		if apiErr != nil {
			return nil, apiErr
		}
		resp.User = user
	}
	return &resp, nil
}

// Me fetches the current user's profile from the token.
func (c *Client) Me(ctx context.Context) (*session.UserProfile, *Error) {
	var user session.UserProfile
	if apiErr := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   "/auth/me",
	}, &user); apiErr != nil {
		return nil, apiErr
	}
	return &user, nil
}

// meWithToken fetches the profile with an explicit token, used right after
// signup before the session manager has stored the new token.
func (c *Client) meWithToken(ctx context.Context, token string) (*session.UserProfile, *Error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	var user session.UserProfile
	if apiErr := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   "/auth/me",
		header: header,
	}, &user); apiErr != nil {
		return nil, apiErr
	}
	return &user, nil
}

// Ask submits a text health question.
func (c *Client) Ask(ctx context.Context, question, language string) (*HealthAnswer, *Error) {
	body, apiErr := jsonBody(healthQueryRequest{Question: question, Language: language})
	if apiErr != nil {
		return nil, apiErr
	}

	var answer HealthAnswer
	if apiErr := c.do(ctx, requestSpec{
		method:      http.MethodPost,
		path:        "/health/ask",
		body:        body,
		contentType: "application/json",
	}, &answer); apiErr != nil {
		return nil, apiErr
	}
	return &answer, nil
}

// AskAudio submits an audio health question as multipart form data with a
// language hint. The multipart content type carries its own boundary.
func (c *Client) AskAudio(ctx context.Context, audio io.Reader, filename, language string) (*AudioAnswer, *Error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, encodingError(err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, encodingError(err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, encodingError(err)
	}
	if err := writer.Close(); err != nil {
		return nil, encodingError(err)
	}

	var answer AudioAnswer
	if apiErr := c.do(ctx, requestSpec{
		method:      http.MethodPost,
		path:        "/health/speak",
		body:        &buf,
		contentType: writer.FormDataContentType(),
	}, &answer); apiErr != nil {
		return nil, apiErr
	}
	return &answer, nil
}

// History fetches a page of the user's past queries.
func (c *Client) History(ctx context.Context, page, pageSize int) (*HistoryPage, *Error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var history HistoryPage
	if apiErr := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   "/user/history",
		query:  query,
	}, &history); apiErr != nil {
		return nil, apiErr
	}
	return &history, nil
}

// UpdateProfile updates the display name and/or preferred language and
// returns the refreshed profile snapshot.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.UserProfile, *Error) {
	body, apiErr := jsonBody(update)
	if apiErr != nil {
		return nil, apiErr
	}

	var user session.UserProfile
	if apiErr := c.do(ctx, requestSpec{
		method:      http.MethodPut,
		path:        "/user/profile",
		body:        body,
		contentType: "application/json",
	}, &user); apiErr != nil {
		return nil, apiErr
	}
	return &user, nil
}

// Analytics fetches the user's usage statistics.
func (c *Client) Analytics(ctx context.Context) (*UsageAnalytics, *Error) {
	var analytics UsageAnalytics
	if apiErr := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   "/logs/analytics",
	}, &analytics); apiErr != nil {
		return nil, apiErr
	}
	return &analytics, nil
}
