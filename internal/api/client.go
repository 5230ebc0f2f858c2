// Package api is the HTTP client for the remote ledger API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/credential"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/normalize"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every request unless WithTimeout says otherwise.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 4 << 10

// Client talks to the ledger API on behalf of the credential holder.
// It is safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	creds          credential.Source
	log            zerolog.Logger
	onUnauthorized func()
	now            func() time.Time
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient     *http.Client
	timeout        time.Duration
	log            zerolog.Logger
	onUnauthorized func()
	now            func() time.Time
}

// WithHTTPClient uses hc as the base client. hc is copied, not modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithLogger sets the logger used for request logging.
func WithLogger(log zerolog.Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

// WithUnauthorizedHook registers fn to run whenever the API rejects the credential.
func WithUnauthorizedHook(fn func()) Option {
	return func(o *clientOptions) { o.onUnauthorized = fn }
}

// WithClock sets the clock used to date drafts that carry no date.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, creds credential.Source, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}

	o := clientOptions{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	hc := *o.httpClient
	hc.Transport = NewTransport(hc.Transport, o.log)
	if o.timeout > 0 {
		hc.Timeout = o.timeout
	}

	return &Client{
		baseURL:        u,
		http:           &hc,
		creds:          creds,
		log:            o.log,
		onUnauthorized: o.onUnauthorized,
		now:            o.now,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListTransactions handles GET /expenses.
func (c *Client) ListTransactions(ctx context.Context) ([]normalize.RawTransaction, error) {
	var resp struct {
		Expenses []normalize.RawTransaction `json:"expenses"`
	}
	if err := c.do(ctx, http.MethodGet, "/expenses", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Expenses, nil
}

// CreateTransaction handles POST /expenses.
func (c *Client) CreateTransaction(ctx context.Context, draft domain.Draft) (normalize.RawTransaction, error) {
	var created normalize.RawTransaction
	if err := c.do(ctx, http.MethodPost, "/expenses", c.draftPayload(draft), &created, true); err != nil {
		return normalize.RawTransaction{}, err
	}
	return created, nil
}

// UpdateTransaction handles PUT /expenses/{id}.
func (c *Client) UpdateTransaction(ctx context.Context, id string, draft domain.Draft) (normalize.RawTransaction, error) {
	var updated normalize.RawTransaction
	if err := c.do(ctx, http.MethodPut, "/expenses/"+url.PathEscape(id), c.draftPayload(draft), &updated, true); err != nil {
		return normalize.RawTransaction{}, err
	}
	return updated, nil
}

// DeleteTransaction handles DELETE /expenses/{id}.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), nil, nil, true)
}

// GetProfile handles GET /auth/me.
func (c *Client) GetProfile(ctx context.Context) (normalize.RawProfile, error) {
	var p normalize.RawProfile
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &p, true); err != nil {
		return normalize.RawProfile{}, err
	}
	return p, nil
}

// UpdateProfile handles PUT /auth/me.
func (c *Client) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (normalize.RawProfile, error) {
	body := map[string]any{}
	if patch.Username != nil {
		body["username"] = *patch.Username
	}
	if patch.FullName != nil {
		body["full_name"] = *patch.FullName
	}
	if patch.Income != nil {
		body["income"] = json.Number(patch.Income.String())
	}

	var p normalize.RawProfile
	if err := c.do(ctx, http.MethodPut, "/auth/me", body, &p, true); err != nil {
		return normalize.RawProfile{}, err
	}
	return p, nil
}

// LoginResult is the answer to a successful login.
type LoginResult struct {
	Token string               `json:"access_token"`
	Type  string               `json:"token_type"`
	User  normalize.RawProfile `json:"user"`
}

// Login handles POST /auth/login. It is the only call that needs no credential.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &res, false); err != nil {
		return LoginResult{}, err
	}
	if res.Token == "" {
		return LoginResult{}, &domain.AuthError{Op: "POST /auth/login", Err: errors.New("no access token in response")}
	}
	return res, nil
}

type draftPayload struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Amount      json.Number `json:"amount"`
	Type        string      `json:"type"`
	Date        string      `json:"date"`
}

func (c *Client) draftPayload(d domain.Draft) draftPayload {
	d = d.WithDefaults(c.now())
	return draftPayload{
		Title:       d.Title,
		Description: d.Description,
		Category:    string(d.Category),
		Amount:      json.Number(d.Amount.Abs().String()),
		Type:        string(d.Kind),
		Date:        d.OccurredAt.UTC().Format(time.RFC3339),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		token, ok := c.creds.Token()
		if !ok {
			return &domain.AuthError{Op: op, Err: domain.ErrNoCredential}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		detail := readDetail(resp)
		if auth && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &domain.AuthError{Op: op, Status: resp.StatusCode, Err: errors.New(detail)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(readDetail(resp))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	u.RawQuery = ""
	u.Fragment = ""
	// path is already escaped by the caller.
	return strings.TrimRight(u.String(), "/") + path
}

func transportError(op string, err error) error {
	var ne net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
	return &domain.NetworkError{Op: op, Timeout: timeout, Err: err}
}

// readDetail extracts FastAPI's {"detail": ...} message, falling back to the raw body.
func readDetail(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		return string(payload.Detail)
	}
	if text := strings.TrimSpace(string(b)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
