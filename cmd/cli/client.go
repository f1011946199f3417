package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server: %d %s", e.Status, e.Detail)
}

// apiReply is the union of the server's JSON bodies.
type apiReply struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Detail    string `json:"detail,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	Activated *bool  `json:"activated,omitempty"`
}

type client struct {
	base string
	http *http.Client
}

func newClient(addr string, timeout time.Duration) *client {
	addr = strings.TrimRight(addr, "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &client{base: addr, http: &http.Client{Timeout: timeout}}
}

func (c *client) post(ctx context.Context, path string, body any) (*apiReply, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(ctx context.Context, path string, q url.Values) (*apiReply, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) (*apiReply, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var r apiReply
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		return nil, &apiError{Status: resp.StatusCode, Detail: r.Detail}
	}
	return &r, nil
}

// ---- endpoint wrappers ----

func (c *client) Register(ctx context.Context, email, password, apiKey string) (*apiReply, error) {
	return c.post(ctx, "/register", map[string]string{"email": email, "password": password, "api_key": apiKey})
}

func (c *client) Login(ctx context.Context, email, password string) (*apiReply, error) {
	return c.post(ctx, "/login", map[string]string{"email": email, "password": password})
}

func (c *client) Verify(ctx context.Context, email, code string) (*apiReply, error) {
	return c.post(ctx, "/verify_email", map[string]string{"email": email, "verification_code": code})
}

func (c *client) Resend(ctx context.Context, email, password string) (*apiReply, error) {
	return c.post(ctx, "/resend_verification_code", map[string]string{"email": email, "password": password})
}

func (c *client) ChangeKey(ctx context.Context, email, newKey string) (*apiReply, error) {
	return c.post(ctx, "/change_apikey", map[string]string{"email": email, "new_api_key": newKey})
}

func (c *client) ChangePassword(ctx context.Context, email, oldPw, newPw string) (*apiReply, error) {
	return c.post(ctx, "/change_password", map[string]string{
		"email": email, "old_password": oldPw, "new_password": newPw,
	})
}

func (c *client) Check(ctx context.Context, apiKey string) (*apiReply, error) {
	if apiKey == "" {
		return nil, errors.New("no api key (login first or pass -k)")
	}
	return c.get(ctx, "/check_apikey", url.Values{"api_key": {apiKey}})
}
