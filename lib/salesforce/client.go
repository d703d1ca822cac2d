// Package salesforce executes translated SOQL statements against a
// Salesforce-style record store over its REST API: OAuth password-grant
// sessions, bounded retry on expired sessions and reset connections, and
// one-level flattening of relationship fields in the results.
package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/crmbridge/sql-to-soql/lib/plog"
)

// Attempts a statement is tried before the failure is surfaced. The first
// attempt counts, so this allows two reconnects.
const queryAttempts = 3

// Config carries the credentials for the shared (not per-user) session.
type Config struct {
	LoginURL       string `json:"loginUrl"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`
	APIVersion     string `json:"apiVersion"`
}

// FromEnv fills missing credential fields from the environment.
func (c *Config) FromEnv() {
	if c.Username == "" {
		c.Username = os.Getenv("SF_USERNAME")
	}
	if c.Password == "" {
		c.Password = os.Getenv("SF_PASSWORD")
	}
	if c.ConsumerKey == "" {
		c.ConsumerKey = os.Getenv("SF_KEY")
	}
	if c.ConsumerSecret == "" {
		c.ConsumerSecret = os.Getenv("SF_SECRET")
	}
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.LoginURL == "" {
		cfg.LoginURL = "https://login.salesforce.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v58.0"
	}
	return cfg
}

// Client is the remote query executor. One Client holds one shared session;
// Query re-authenticates transparently when the session expires.
type Client struct {
	cfg    Config
	client *http.Client
	log    plog.Logger

	mu          sync.Mutex
	instanceURL string
	accessToken string
}

// NewClient creates a Client. No network traffic happens until Login or the
// first Query.
func NewClient(cfg Config, logger plog.Logger) *Client {
	if logger == nil {
		logger = plog.Nop{}
	}
	return &Client{
		cfg: cfg.withDefaults(),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client. Tests use it.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.client = client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
}

// Login establishes (or reestablishes) the authenticated session using the
// OAuth2 password grant.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.cfg.ConsumerKey)
	form.Set("client_secret", c.cfg.ConsumerSecret)
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.LoginURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return &APIError{Code: http.StatusBadGateway, Message: "failed to create login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Code: http.StatusBadGateway, Message: "login request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Code: http.StatusBadGateway, Message: "failed to read login response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("login rejected: %s", strings.TrimSpace(string(body))),
		}
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return &APIError{Code: http.StatusBadGateway, Message: "failed to parse login response", Err: err}
	}

	c.mu.Lock()
	c.instanceURL = strings.TrimRight(tok.InstanceURL, "/")
	c.accessToken = tok.AccessToken
	c.mu.Unlock()
	c.log.Infof("salesforce: session established with %s", c.instanceURL)
	return nil
}

func (c *Client) session() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceURL, c.accessToken
}

type queryResponse struct {
	TotalSize int              `json:"totalSize"`
	Done      bool             `json:"done"`
	Records   []map[string]any `json:"records"`
}

// Query runs one SOQL statement and returns flattened records. On an expired
// session or a reset connection it re-authenticates and retries the same
// statement, up to the bounded attempt budget, then surfaces the failure.
func (c *Client) Query(ctx context.Context, soql string) ([]Record, error) {
	attempt := func() ([]Record, error) {
		records, err := c.queryOnce(ctx, soql)
		if err == nil {
			return records, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		c.log.Errorf("salesforce: query error, reconnecting: %v", err)
		if lerr := c.Login(ctx); lerr != nil {
			return nil, backoff.Permanent(lerr)
		}
		return nil, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(queryAttempts),
	)
}

func (c *Client) queryOnce(ctx context.Context, soql string) ([]Record, error) {
	instance, token := c.session()
	if token == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		instance, token = c.session()
	}

	reqURL := fmt.Sprintf("%s/services/data/%s/query?q=%s",
		instance, c.cfg.APIVersion, url.QueryEscape(soql))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "failed to create query request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "query request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readAPIError(resp)
	}

	var qr queryResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&qr); err != nil {
		return nil, &APIError{Code: http.StatusBadGateway, Message: "failed to parse query response", Err: err}
	}
	return FlattenRecords(qr.Records), nil
}

// UserInfo describes the authenticated user, used to personalize the chat
// system prompt.
type UserInfo struct {
	Id          string
	Name        string
	Username    string
	Email       string
	Phone       string
	CompanyName string
	Title       string
}

// CurrentUser queries the user record matching the configured username.
func (c *Client) CurrentUser(ctx context.Context) (*UserInfo, error) {
	soql := fmt.Sprintf(
		"SELECT Name, Phone, Username, CompanyName, Email, Id, Title FROM User WHERE Username = '%s'",
		c.cfg.Username)
	records, err := c.Query(ctx, soql)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &APIError{
			Code:    http.StatusNotFound,
			Message: fmt.Sprintf("no user record for %s", c.cfg.Username),
		}
	}
	r := records[0]
	return &UserInfo{
		Id:          str(r["Id"]),
		Name:        str(r["Name"]),
		Username:    str(r["Username"]),
		Email:       str(r["Email"]),
		Phone:       str(r["Phone"]),
		CompanyName: str(r["CompanyName"]),
		Title:       str(r["Title"]),
	}, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// readAPIError decodes the store's error payload, which is a JSON array of
// {message, errorCode} objects.
func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	var payload []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	apiErr := &APIError{Code: resp.StatusCode}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload) > 0 {
		apiErr.Message = payload[0].Message
		apiErr.ErrorCode = payload[0].ErrorCode
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("query failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return apiErr
}

// retryable reports whether a fresh login and another attempt may succeed.
func retryable(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) && ae.SessionExpired() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET)
}
