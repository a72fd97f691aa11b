package vesta

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/locie/comepos-fetcher/internal/core"
)

// tokenTTL is how long a session token stays valid. The service expires
// sessions after roughly half an hour; the client re-authenticates inline
// before the first request past that age.
const tokenTTL = 30 * time.Minute

// APIError is returned when the Vesta service answers with an error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vesta error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP transport for the Vesta web service. It owns the
// session token and renews it when stale.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        logrus.FieldLogger

	token     string
	tokenTime time.Time
	retryWait time.Duration
}

// NewClient creates a Vesta transport. An empty baseURL selects the
// production service.
func NewClient(baseURL, username, password string, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = core.DefaultBaseURL
	}
	if log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		log = logger
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "vesta",
			Timeout: time.Minute,
		}),
		log:       log.WithField("component", "vesta"),
		retryWait: time.Second,
	}
}

// Get performs a GET request against the given endpoint and returns the raw
// body. Retries automatically on connection errors, HTTP 5xx and 429, with
// exponential back-off.
func (c *Client) Get(endpoint string, params url.Values) ([]byte, error) {
	if err := c.ensureToken(); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("token", c.token)

	return c.request(endpoint, q)
}

func (c *Client) request(endpoint string, q url.Values) ([]byte, error) {
	urlStr := c.baseURL + endpoint + "?" + q.Encode()
	c.log.WithField("endpoint", endpoint).Debug("GET")

	maxRetries := 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.do(urlStr)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxRetries {
			return nil, err
		}
		wait := time.Duration(1<<(attempt-1)) * c.retryWait
		c.log.WithError(err).Warnf("attempt %d failed; retrying in %v", attempt, wait)
		time.Sleep(wait)
	}

	return nil, lastErr
}

func (c *Client) do(urlStr string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Get(urlStr)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	// Connection-level failures are worth another try.
	return true
}

// ensureToken logs in when no token is held or the current one is stale.
func (c *Client) ensureToken() error {
	if c.token != "" && time.Since(c.tokenTime) < tokenTTL {
		return nil
	}
	return c.login()
}

func (c *Client) login() error {
	q := url.Values{}
	q.Set("login", c.username)
	q.Set("password", c.password)

	body, err := c.request("login.php", q)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return fmt.Errorf("login: empty token response")
	}
	c.token = token
	c.tokenTime = time.Now()
	c.log.Debug("session token refreshed")
	return nil
}

// Close logs the session out. Errors are ignored; the token expires on its
// own server side.
func (c *Client) Close() {
	if c.token == "" {
		return
	}
	q := url.Values{}
	q.Set("token", c.token)
	_, _ = c.request("logout.php", q)
	c.token = ""
}
