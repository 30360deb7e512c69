// Package apiclient is the shared HTTP plumbing of the storyboard, search and
// voice adapters.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Client struct {
	Service string
	BaseURL string
	Key     string
	// Authorize sets the service's credential header.
	Authorize func(h http.Header, key string)
	Timeout   time.Duration
	HTTP      *http.Client
	Log       zerolog.Logger
}

// StatusError is a non-2xx response. Body is redacted and truncated.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Service, e.Code, e.Body)
}

// Do sends one request and hands the response body to handle on success.
func (c *Client) Do(ctx context.Context, method, path, contentType string, body []byte, handle func(io.Reader) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Authorize != nil {
		c.Authorize(req.Header, c.Key)
	}

	start := time.Now()
	resp, err := c.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s request: %w", c.Service, ctx.Err())
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timeout after %s: %w", c.Service, c.timeout(), context.DeadlineExceeded)
		}
		return fmt.Errorf("%s request: %s", c.Service, RedactSecrets(err.Error(), c.Key))
	}
	defer resp.Body.Close()

	c.Log.Debug().
		Str("service", c.Service).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("%s status %d and read body failed: %v", c.Service, resp.StatusCode, readErr)
		}
		return &StatusError{Service: c.Service, Code: resp.StatusCode, Body: Truncate(RedactSecrets(string(rb), c.Key), 400)}
	}
	if handle == nil {
		return nil
	}
	return handle(resp.Body)
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 90 * time.Second
	}
	return c.Timeout
}

func (c *Client) client() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)((?:x|xi)-api-key\s*[:=]\s*|api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

// RedactSecrets masks key and common credential shapes in s.
func RedactSecrets(s, key string) string {
	if s == "" {
		return s
	}
	out := s
	if key != "" {
		out = strings.ReplaceAll(out, key, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
