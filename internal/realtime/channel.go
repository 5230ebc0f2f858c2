// Package realtime keeps a push connection to the ledger API open for the
// signed-in user and forwards new transactions to the store.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/credential"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/normalize"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Path is the push endpoint below the API root.
const Path = "/ws/expenses"

// Envelope types sent by the server.
const (
	TypeNewExpense = "new_expense"
	TypeConnection = "connection"
	TypePong       = "pong"
	TypePing       = "ping"
)

const closeGrace = time.Second

// State is the lifecycle of a Channel.
type State int32

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Applier receives what the channel learns. *ledger.Store implements it.
type Applier interface {
	ApplyRemote(raw normalize.RawTransaction) (bool, error)
	Load(ctx context.Context) error
}

// Options configures a Channel. Zero durations fall back to defaults;
// a zero PingInterval disables the keepalive.
type Options struct {
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	PingInterval      time.Duration
	HandshakeTimeout  time.Duration
	ReloadOnReconnect bool

	Logger zerolog.Logger
	// OnAuthFailure runs on the channel goroutine when the server rejects the credential.
	OnAuthFailure func(err error)
	// OnStateChange runs after every transition.
	OnStateChange func(State)
	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

func (o *Options) setDefaults() {
	if o.MinBackoff <= 0 {
		o.MinBackoff = time.Second
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 30 * o.MinBackoff
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

// Channel is one push connection with reconnect. It is never reopened once closed.
type Channel struct {
	baseURL string
	creds   credential.Source
	applier Applier
	opts    Options
	log     zerolog.Logger
	dialer  *websocket.Dialer

	mu     sync.Mutex
	state  State
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle channel for the API rooted at baseURL.
func New(baseURL string, creds credential.Source, applier Applier, opts Options) *Channel {
	opts.setDefaults()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	return &Channel{
		baseURL: baseURL,
		creds:   creds,
		applier: applier,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "realtime").Logger(),
		dialer:  dialer,
		done:    make(chan struct{}),
	}
}

// Endpoint derives the push URL from the API root: https becomes wss,
// http becomes ws, and the credential travels as the token query parameter.
func Endpoint(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}

	u.Path = strings.TrimRight(u.Path, "/") + Path
	u.RawPath = ""
	u.Fragment = ""
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Start connects in the background. It fails without a credential and
// when the channel has already been started or closed.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil || c.closed {
		return fmt.Errorf("realtime: cannot start from state %s", c.state)
	}
	if _, ok := c.creds.Token(); !ok {
		return &domain.AuthError{Op: "realtime start", Err: domain.ErrNoCredential}
	}
	if _, err := Endpoint(c.baseURL, ""); err != nil {
		return fmt.Errorf("realtime: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	return nil
}

// Close stops the channel. It does not wait; use Done for that.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.cancel != nil
	if started {
		c.cancel()
	}
	c.mu.Unlock()

	c.setState(Closed)
	if !started {
		close(c.done)
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the channel has reached Closed for good.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Closed)

	attempt := 0
	connected := false

	for {
		token, ok := c.creds.Token()
		if !ok {
			c.log.Info().Msg("Credential gone, closing push channel")
			return
		}

		c.setState(Connecting)
		conn, err := c.dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if domain.IsAuth(err) {
				c.authFailed(err)
				return
			}
			attempt++
			wait := Backoff(attempt, c.opts.MinBackoff, c.opts.MaxBackoff)
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Push channel connect failed")
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		attempt = 0
		c.setState(Open)
		if connected && c.opts.ReloadOnReconnect {
			// Anything pushed while disconnected was missed; a full load covers the gap.
			if err := c.applier.Load(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Reload after reconnect failed")
			}
		}
		connected = true

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			c.authFailed(&domain.AuthError{Op: "realtime", Err: err})
			return
		}

		attempt++
		wait := Backoff(attempt, c.opts.MinBackoff, c.opts.MaxBackoff)
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("Push channel dropped")
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	endpoint, err := Endpoint(c.baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &domain.AuthError{Op: "realtime handshake", Status: resp.StatusCode, Err: err}
		}
		// The endpoint carries the credential, so only the error is returned.
		return nil, fmt.Errorf("dial push channel: %w", err)
	}

	c.log.Info().Msg("Push channel connected")
	return conn, nil
}

// serve reads until the connection fails or ctx ends.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	stopped := make(chan struct{})
	defer close(stopped)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		conn.Close()
	})
	defer stop()

	if c.opts.PingInterval > 0 {
		go c.keepalive(conn, stopped)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.handle(data); err != nil {
			c.log.Warn().Err(err).Msg("Discarding push message")
		}
	}
}

// keepalive is the only writer of data frames on conn.
func (c *Channel) keepalive(conn *websocket.Conn, stopped <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopped:
			return
		case t := <-ticker.C:
			msg := map[string]any{"type": TypePing, "timestamp": t.UnixMilli()}
			if err := conn.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("Keepalive write failed")
				return
			}
		}
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handle dispatches one inbound message. Errors never close the connection.
func (c *Channel) handle(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &domain.ChannelParseError{Err: err}
	}

	switch env.Type {
	case TypeNewExpense:
		var raw normalize.RawTransaction
		if err := json.Unmarshal(env.Payload, &raw); err != nil {
			return &domain.ChannelParseError{Type: env.Type, Err: err}
		}
		inserted, err := c.applier.ApplyRemote(raw)
		if err != nil {
			return &domain.ChannelParseError{Type: env.Type, Err: err}
		}
		c.log.Debug().Bool("inserted", inserted).Msg("Push transaction applied")
	case TypeConnection, TypePong:
		c.log.Debug().Str("type", env.Type).RawJSON("payload", payloadOrNull(env.Payload)).Msg("Push channel message")
	default:
		c.log.Debug().Str("type", env.Type).Msg("Ignoring push message")
	}
	return nil
}

func (c *Channel) authFailed(err error) {
	c.log.Warn().Err(err).Msg("Push channel rejected credential")
	if c.opts.OnAuthFailure != nil {
		c.opts.OnAuthFailure(err)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s || c.state == Closed || (c.closed && s != Closed) {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.log.Debug().Str("state", s.String()).Msg("Push channel state")
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// Backoff returns the wait before the given reconnect attempt (1-based):
// min doubled per attempt, capped at max, with the upper half jittered.
func Backoff(attempt int, min, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	half := d / 2
	return half + rand.N(d-half+1)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func payloadOrNull(p json.RawMessage) []byte {
	if len(p) == 0 || !json.Valid(p) {
		return []byte("null")
	}
	return p
}
