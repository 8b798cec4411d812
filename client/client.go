// Package client is a Go client for the dashboard resource API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/structsense/dashboard/models"
	"github.com/structsense/dashboard/services/health"
)

// DefaultTimeout bounds a single API call
const DefaultTimeout = 30 * time.Second

// ErrNotAuthenticated is returned when a call needs a token and none is set
var ErrNotAuthenticated = errors.New("not logged in")

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Code       string                 `json:"error"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsUnauthorized reports whether err is a 401 from the API
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Token is the response of the token endpoint
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ReadingsQuery filters processed readings. Zero values are omitted.
type ReadingsQuery struct {
	Limit  int
	Status models.ReadingStatus
	From   *time.Time
	To     *time.Time
}

// ResetResult reports a baseline reset
type ResetResult struct {
	Device          *models.Device `json:"device"`
	ReadingsRemoved int64          `json:"readings_removed"`
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sets the bearer token sent on every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// Client calls the dashboard API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
}

// New creates a client for the API at baseURL (e.g. http://localhost:8000)
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the bearer token in use
func (c *Client) Token() string {
	return c.token
}

// SetToken replaces the bearer token
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges credentials for an access token and keeps it for later calls
func (c *Client) Login(ctx context.Context, email, password string) (*Token, error) {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/auth/token", nil, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token Token
	if err := c.do(req, &token); err != nil {
		return nil, err
	}
	c.token = token.AccessToken
	return &token, nil
}

// Me returns the logged-in user
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.getData(ctx, "/api/v1/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Devices lists all devices, newest first
func (c *Client) Devices(ctx context.Context) ([]*models.Device, error) {
	req, err := c.authedRequest(ctx, http.MethodGet, "/api/v1/devices", nil, nil)
	if err != nil {
		return nil, err
	}
	var devices []*models.Device
	if err := c.do(req, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Device fetches one device
func (c *Client) Device(ctx context.Context, id int64) (*models.Device, error) {
	var device models.Device
	if err := c.getData(ctx, devicePath(id), nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// UpdateDevice applies a partial update. Keys follow the API's JSON field names.
func (c *Client) UpdateDevice(ctx context.Context, id int64, fields map[string]interface{}) (*models.Device, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	req, err := c.authedRequest(ctx, http.MethodPatch, devicePath(id), nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var envelope struct {
		Data models.Device `json:"data"`
	}
	if err := c.do(req, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// DeleteDevice removes a device and its readings
func (c *Client) DeleteDevice(ctx context.Context, id int64) error {
	req, err := c.authedRequest(ctx, http.MethodDelete, devicePath(id), nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ResetDevice clears a device's readings so the next one becomes its baseline
func (c *Client) ResetDevice(ctx context.Context, id int64) (*ResetResult, error) {
	req, err := c.authedRequest(ctx, http.MethodPost, devicePath(id)+"/reset", nil, nil)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data ResetResult `json:"data"`
	}
	if err := c.do(req, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// ProcessedReadings lists a device's processed readings, newest first
func (c *Client) ProcessedReadings(ctx context.Context, id int64, q ReadingsQuery) ([]*models.ProcessedReading, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	setTime(params, "from", q.From)
	setTime(params, "to", q.To)

	req, err := c.authedRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/sensor/devices/%d/processed", id), params, nil)
	if err != nil {
		return nil, err
	}
	var readings []*models.ProcessedReading
	if err := c.do(req, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// Export streams a CSV export into w and returns the server-suggested filename
func (c *Client) Export(ctx context.Context, id int64, from, to *time.Time, w io.Writer) (string, int64, error) {
	params := url.Values{"format": {"csv"}}
	setTime(params, "from", from)
	setTime(params, "to", to)

	req, err := c.authedRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/sensor/devices/%d/export", id), params, nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", 0, decodeError(resp)
	}

	filename := fmt.Sprintf("device_%d.csv", id)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return filename, n, fmt.Errorf("read export: %w", err)
	}
	return filename, n, nil
}

// Health returns the server health snapshot. An unhealthy server answers
// 503 with a snapshot body, which is returned without an error.
func (c *Client) Health(ctx context.Context) (*health.Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/health", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeError(resp)
	}

	var snap health.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &snap, nil
}

func (c *Client) getData(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := c.authedRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	envelope := struct {
		Data interface{} `json:"data"`
	}{Data: out}
	return c.do(req, &envelope)
}

func (c *Client) authedRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	req, err := c.newRequest(ctx, method, path, params, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return apiErr
}

func devicePath(id int64) string {
	return "/api/v1/devices/" + strconv.FormatInt(id, 10)
}

func setTime(params url.Values, key string, t *time.Time) {
	if t != nil {
		params.Set(key, t.UTC().Format(time.RFC3339))
	}
}
