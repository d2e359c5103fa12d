package marketing

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ClientError is returned when the marketing site cannot be reached or rejects the session.
type ClientError struct {
	Message string
	Status  int
}

func (e *ClientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("marketing site: %s (status %d)", e.Message, e.Status)
	}
	return "marketing site: " + e.Message
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the HTTP timeout of the session client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// Client is a cookie-session client of the marketing site API.
type Client struct {
	root     string
	username string
	password string
	http     *http.Client

	mu       sync.Mutex
	loggedIn bool
	userID   string
}

// New validates credentials and prepares a session client. No request is made until first use.
func New(username, password, siteRoot string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" || strings.TrimSpace(siteRoot) == "" {
		return nil, &ClientError{Message: "marketing site username, password and url root are required"}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		root:     strings.TrimRight(strings.TrimSpace(siteRoot), "/"),
		username: username,
		password: password,
		http:     &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Login opens a session. The site answers a successful login with a redirect to /admin.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	form := url.Values{
		"name":    {c.username},
		"pass":    {c.password},
		"form_id": {"user_login"},
		"op":      {"Log in"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.root+"/user", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ClientError{Message: "login request failed: " + err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Message: "login failed", Status: resp.StatusCode}
	}
	if resp.Request == nil || strings.TrimRight(resp.Request.URL.String(), "/") != c.root+"/admin" {
		return &ClientError{Message: "login failed: unexpected landing page", Status: resp.StatusCode}
	}
	c.loggedIn = true
	return nil
}

// CSRFToken fetches a fresh CSRF token for write requests.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	raw, status, err := c.do(ctx, http.MethodGet, c.root+"/restws/session/token?cachebust="+cacheBuster(), nil, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ClientError{Message: "failed to fetch csrf token", Status: status}
	}
	return strings.TrimSpace(string(raw)), nil
}

// UserID resolves the numeric id of the API user. The result is cached per client.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	cached := c.userID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	raw, status, err := c.do(ctx, http.MethodGet, c.root+"/user.json?name="+url.QueryEscape(c.username), nil, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ClientError{Message: "failed to look up api user", Status: status}
	}
	var body struct {
		List []struct {
			UID interface{} `json:"uid"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode user lookup: %w", err)
	}
	if len(body.List) == 0 {
		return "", &ClientError{Message: "api user not found"}
	}
	id := fmt.Sprint(body.List[0].UID)

	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
	return id, nil
}

// Headers returns the headers every write request needs.
func (c *Client) Headers(ctx context.Context) (http.Header, error) {
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-CSRF-Token", token)
	return h, nil
}

// UpsertNode creates or updates the node matched by lookup field=value and returns its id.
func (c *Client) UpsertNode(ctx context.Context, lookupField, lookupValue string, node map[string]interface{}) (string, error) {
	headers, err := c.Headers(ctx)
	if err != nil {
		return "", err
	}

	raw, status, err := c.do(ctx, http.MethodGet, c.root+"/node.json?"+url.Values{lookupField: {lookupValue}}.Encode(), nil, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ClientError{Message: "node lookup failed", Status: status}
	}
	var found struct {
		List []struct {
			NID interface{} `json:"nid"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &found); err != nil {
		return "", fmt.Errorf("decode node lookup: %w", err)
	}

	body, err := json.Marshal(node)
	if err != nil {
		return "", err
	}

	if len(found.List) > 0 {
		nid := fmt.Sprint(found.List[0].NID)
		_, status, err = c.do(ctx, http.MethodPut, c.root+"/node/"+nid+".json", body, headers)
		if err != nil {
			return "", err
		}
		if status != http.StatusOK {
			return "", &ClientError{Message: "node update failed", Status: status}
		}
		return nid, nil
	}

	raw, status, err = c.do(ctx, http.MethodPost, c.root+"/node.json", body, headers)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", &ClientError{Message: "node create failed", Status: status}
	}
	var created struct {
		ID interface{} `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("decode node create: %w", err)
	}
	return fmt.Sprint(created.ID), nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, headers http.Header) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &ClientError{Message: fmt.Sprintf("%s %s: %v", method, target, err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, err
}

const cacheBusterAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func cacheBuster() string {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(cacheBusterAlphabet))))
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(cacheBusterAlphabet[n.Int64()])
	}
	return b.String()
}
