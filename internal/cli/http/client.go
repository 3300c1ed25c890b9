package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Credentials supplies per-request auth: judger name/key headers for the
// worker surface, a bearer token for the admin surface.
type Credentials struct {
	JudgerName string
	JudgerKey  string
	AdminToken string
}

// Client wraps HTTP requests for the CLI.
type Client struct {
	baseURL     string
	timeout     time.Duration
	credentials func() Credentials
}

func New(baseURL string, timeout time.Duration, credentials func() Credentials) *Client {
	return &Client{
		baseURL:     baseURL,
		timeout:     timeout,
		credentials: credentials,
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

func (c *Client) Do(ctx context.Context, method, path string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo
	client := &http.Client{Timeout: c.timeout}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", c.baseURL, path), reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credentials != nil {
		creds := c.credentials()
		if creds.JudgerName != "" {
			req.Header.Set("X-Judger-Name", creds.JudgerName)
		}
		if creds.JudgerKey != "" {
			req.Header.Set("X-Judger-Key", creds.JudgerKey)
		}
		if creds.AdminToken != "" {
			req.Header.Set("Authorization", "Bearer "+creds.AdminToken)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}
