// Package mygeotab implements gateway.Gateway against a MyGeotab-compatible
// JSON-RPC fleet API (Authenticate, Get, Add and Set over POST /apiv1).
package mygeotab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/yardmove/internal/apperr"
)

// Options configures a Client.
type Options struct {
	// Server is the base URL or host name, e.g. "https://my.geotab.com".
	Server    string
	Database  string
	UserName  string
	Password  string
	SessionID string
	Timeout   time.Duration
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Credentials identify an authenticated session.
type Credentials struct {
	Database  string `json:"database"`
	UserName  string `json:"userName"`
	SessionID string `json:"sessionId"`
}

// Client is a JSON-RPC client. It authenticates lazily and re-authenticates
// once when the server reports an expired session.
type Client struct {
	http     *http.Client
	logger   *slog.Logger
	password string

	mu       sync.Mutex
	endpoint string
	creds    Credentials
}

// New creates a client. No request is made until the first call.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:     hc,
		logger:   logger,
		password: opts.Password,
		endpoint: endpointFor(opts.Server),
		creds: Credentials{
			Database:  opts.Database,
			UserName:  opts.UserName,
			SessionID: opts.SessionID,
		},
	}
}

func endpointFor(server string) string {
	s := strings.TrimRight(strings.TrimSpace(server), "/")
	if s == "" {
		s = "my.geotab.com"
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	if !strings.HasSuffix(s, "/apiv1") {
		s += "/apiv1"
	}
	return s
}

type rpcRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Errors  []struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *RPCError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: %s", e.Errors[0].Name, e.Errors[0].Message)
	}
	return e.Message
}

// has reports whether any nested error carries one of the given names.
func (e *RPCError) has(names ...string) bool {
	for _, inner := range e.Errors {
		for _, n := range names {
			if inner.Name == n {
				return true
			}
		}
	}
	for _, n := range names {
		if e.Name == n {
			return true
		}
	}
	return false
}

var (
	sessionErrors  = []string{"InvalidUserException", "InvalidSessionException"}
	conflictErrors = []string{"DbUpdateConcurrencyException", "ConcurrencyException", "OptimisticConcurrencyException"}
	notFoundErrors = []string{"ObjectNotFoundException", "EntityNotFoundException"}
)

// classify maps a server error onto the shared error kinds.
func classify(op string, e *RPCError) error {
	switch {
	case e.has(conflictErrors...):
		return fmt.Errorf("%s: %s: %w", op, e.Error(), apperr.ErrConflict)
	case e.has(notFoundErrors...):
		return fmt.Errorf("%s: %s: %w", op, e.Error(), apperr.ErrNotFound)
	default:
		return apperr.Gateway(op, e)
	}
}

// Authenticate obtains a session id using the configured password.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	endpoint := c.endpoint
	c.mu.Unlock()

	if c.password == "" {
		return apperr.Gateway("authenticate", errors.New("no password configured and session is not valid"))
	}

	var res struct {
		Credentials Credentials `json:"credentials"`
		Path        string      `json:"path"`
	}
	err := c.post(ctx, endpoint, "Authenticate", map[string]string{
		"database": creds.Database,
		"userName": creds.UserName,
		"password": c.password,
	}, &res)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return apperr.Gateway("authenticate", rpcErr)
		}
		return err
	}

	c.mu.Lock()
	c.creds = res.Credentials
	if res.Path != "" && res.Path != "ThisServer" {
		c.endpoint = endpointFor(res.Path)
	}
	c.mu.Unlock()

	c.logger.Info("mygeotab: authenticated",
		slog.String("database", res.Credentials.Database),
		slog.String("user", res.Credentials.UserName))
	return nil
}

// call runs method with credentials attached, authenticating first when no
// session exists and once more when the session was rejected.
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	needAuth := c.creds.SessionID == ""
	c.mu.Unlock()
	if needAuth {
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
	}

	err := c.callOnce(ctx, method, params, out)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.has(sessionErrors...) {
		c.logger.Info("mygeotab: session rejected, re-authenticating")
		if authErr := c.Authenticate(ctx); authErr != nil {
			return authErr
		}
		err = c.callOnce(ctx, method, params, out)
	}
	return err
}

func (c *Client) callOnce(ctx context.Context, method string, params map[string]any, out any) error {
	c.mu.Lock()
	creds := c.creds
	endpoint := c.endpoint
	c.mu.Unlock()

	withCreds := make(map[string]any, len(params)+1)
	for k, v := range params {
		withCreds[k] = v
	}
	withCreds["credentials"] = creds
	return c.post(ctx, endpoint, method, withCreds, out)
}

// post sends one JSON-RPC request. Server errors are returned as *RPCError;
// transport and decoding failures are wrapped with apperr.ErrGateway.
func (c *Client) post(ctx context.Context, endpoint, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{ID: uuid.NewString(), Method: method, Params: params})
	if err != nil {
		return apperr.Gateway(method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apperr.Gateway(method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Gateway(method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return apperr.Gateway(method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.Gateway(method, fmt.Errorf("http status %d", resp.StatusCode))
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return apperr.Gateway(method, fmt.Errorf("decode response: %w", err))
	}
	if rpc.Error != nil {
		return rpc.Error
	}
	if out == nil || len(rpc.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpc.Result, out); err != nil {
		return apperr.Gateway(method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}
