// Package client is a typed HTTP client for the lock service's admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/types"
)

// APIError is a non-success response. Message comes from the body's
// "message" or "msg" field when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the service at baseURL. A nil hc uses a client
// with a 15 second timeout.
func New(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: u, http: hc}, nil
}

func userPath(email string, rest ...string) string {
	p := "users/" + url.PathEscape(email) + "/"
	for _, r := range rest {
		p += r + "/"
	}
	return p
}

func (c *Client) CreateUser(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "users/", types.EmailRequest{EmailAddress: email}, nil)
}

func (c *Client) RemoveUser(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodDelete, userPath(email), nil, nil)
}

func (c *Client) AssignRFID(ctx context.Context, email, rfid string) error {
	return c.do(ctx, http.MethodPost, "assign-rfid-id-to-user/", types.AssignRFIDRequest{EmailAddress: email, RFIDID: rfid}, nil)
}

func (c *Client) RemoveRFID(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "remove-rfid-id-from-user/", types.EmailRequest{EmailAddress: email}, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]types.UserView, error) {
	var out []types.UserView
	err := c.do(ctx, http.MethodGet, "users/", nil, &out)
	return out, err
}

func (c *Client) GetUser(ctx context.Context, email string) (types.UserView, error) {
	var out types.UserView
	err := c.do(ctx, http.MethodGet, userPath(email), nil, &out)
	return out, err
}

func (c *Client) ListRules(ctx context.Context, email string) (types.AccessRulesResponse, error) {
	var out types.AccessRulesResponse
	err := c.do(ctx, http.MethodGet, userPath(email, "access-rules"), nil, &out)
	return out, err
}

func (c *Client) AddRule(ctx context.Context, req types.AddAccessRuleRequest) (types.AddAccessRuleResponse, error) {
	var out types.AddAccessRuleResponse
	err := c.do(ctx, http.MethodPost, userPath(req.EmailAddress, "access-rules"), req, &out)
	return out, err
}

func (c *Client) RemoveRule(ctx context.Context, email string, index int) error {
	return c.do(ctx, http.MethodDelete, userPath(email, "access-rules", strconv.Itoa(index)), nil, nil)
}

func (c *Client) GrantUnconditional(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "grant-unconditional-access/", types.EmailRequest{EmailAddress: email}, nil)
}

func (c *Client) DenyUnconditional(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "deny-unconditional-access/", types.EmailRequest{EmailAddress: email}, nil)
}

func (c *Client) UseRules(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "use-access-rules/", types.EmailRequest{EmailAddress: email}, nil)
}

// LogFilter maps onto the query parameters of GET /log/.
type LogFilter struct {
	User     string
	Category string
	Limit    int
}

func (c *Client) Log(ctx context.Context, f LogFilter) (types.LogResponse, error) {
	q := url.Values{}
	if f.User != "" {
		q.Set("user", f.User)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "log/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out types.LogResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Verify returns the decision for rfid. Denied and unknown ids come back as
// a response together with an *APIError carrying the status.
func (c *Client) Verify(ctx context.Context, rfid string) (types.VerifyResponse, error) {
	var out types.VerifyResponse
	err := c.do(ctx, http.MethodPost, "verify-rfid-id-access/", types.VerifyRequest{RFIDID: rfid}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	target := c.base.ResolveReference(ref)

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		if out != nil {
			_ = json.Unmarshal(raw, out)
		}
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Message *string `json:"message"`
		Msg     *string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != nil {
			return *payload.Message
		}
		if payload.Msg != nil {
			return *payload.Msg
		}
	}
	return "An unknown error occurred: " + strconv.Itoa(status)
}
