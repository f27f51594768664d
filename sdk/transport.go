package nava

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

	"github.com/cenkalti/backoff/v4"

	"github.com/vango-go/nava/pkg/core"
)

const (
	versionHeader                      = "X-Nava-Version"
	versionValue                       = "1"
	sessionHeader                      = "X-Nava-Session"
	defaultGatewayRequestTimeout       = 2 * time.Minute
	maxGatewayErrorBodyBytes     int64 = 1 << 20
)

// call describes one gateway request.
type call struct {
	method  string
	path    string
	payload any
	out     any
	session bool
	retry   bool
}

// do runs c against the gateway, decoding a 2xx body into c.out. Retryable
// failures are retried with backoff when c.retry is set.
func (cl *Client) do(ctx context.Context, c call) error {
	ctx, cancel := withDefaultGatewayTimeout(ctx)
	defer cancel()

	endpoint, err := cl.gatewayEndpoint(c.path)
	if err != nil {
		return err
	}
	var body []byte
	if c.payload != nil {
		body, err = json.Marshal(c.payload)
		if err != nil {
			return core.NewInvalidRequestError("failed to marshal request body")
		}
	}

	retries := 0
	if c.retry {
		retries = cl.maxRetries
	}
	attempts := 0
	b := backoff.WithContext(backoff.WithMaxRetries(cl.backoff(), uint64(retries)), ctx)
	return backoff.Retry(func() error {
		attempts++
		err := cl.once(ctx, c, endpoint, body)
		if err == nil {
			return nil
		}
		if !c.retry || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		cl.logger.Debug("nava: gateway attempt failed", "path", c.path, "attempt", attempts, "error", err)
		return err
	}, b)
}

func (cl *Client) once(ctx context.Context, c call, endpoint string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, endpoint, reader)
	if err != nil {
		return &TransportError{Op: c.method, URL: endpoint, Err: err}
	}
	for key, values := range cl.headers(c.session) {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := cl.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: c.method, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeGatewayErrorResponse(resp, endpoint, c.method)
	}
	defer resp.Body.Close()

	if c.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(c.out); err != nil {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "failed to decode gateway response",
			RequestID: requestIDFromHeader(resp.Header),
		}
	}
	return nil
}

func (cl *Client) headers(withSession bool) http.Header {
	h := make(http.Header)
	h.Set(versionHeader, versionValue)
	if cl.apiKey != "" {
		h.Set("Authorization", "Bearer "+cl.apiKey)
	}
	if withSession {
		if token := cl.Session(); token != "" {
			h.Set(sessionHeader, token)
		}
	}
	return h
}

func (cl *Client) gatewayEndpoint(path string) (string, error) {
	if cl.baseURL == "" {
		return "", core.NewInvalidRequestError("gateway base URL is not set")
	}
	base, err := url.Parse(cl.baseURL)
	if err != nil || strings.TrimSpace(base.Scheme) == "" || strings.TrimSpace(base.Host) == "" {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	if base.User != nil {
		return "", core.NewInvalidRequestError("gateway base URL must not include credentials")
	}

	base.RawQuery = ""
	base.Fragment = ""

	cleanPath := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(base.Path, "/")
	if basePath == "" || basePath == "/" {
		base.Path = cleanPath
	} else {
		base.Path = basePath + cleanPath
	}
	base.RawPath = ""

	return base.String(), nil
}

func (cl *Client) gatewayWebSocketEndpoint(path string) (string, error) {
	endpoint, err := cl.gatewayEndpoint(path)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid gateway base URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", core.NewInvalidRequestError("gateway base URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}

func decodeGatewayErrorResponse(resp *http.Response, endpoint, method string) error {
	defer resp.Body.Close()

	requestID := requestIDFromHeader(resp.Header)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayErrorBodyBytes))
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}

	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if env.Error.RequestID == "" {
			env.Error.RequestID = requestID
		}
		if env.Error.RetryAfter == nil {
			env.Error.RetryAfter = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
		}
		if env.Error.Type == "" {
			env.Error.Type = inferErrorType(resp.StatusCode)
		}
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		return env.Error
	}

	return &core.Error{
		Type:       inferErrorType(resp.StatusCode),
		Message:    fmt.Sprintf("gateway request failed with status %d", resp.StatusCode),
		RequestID:  requestID,
		RetryAfter: parseRetryAfterHeader(resp.Header.Get("Retry-After")),
	}
}

func inferErrorType(statusCode int) core.ErrorType {
	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusMethodNotAllowed:
		return core.ErrInvalidRequest
	case http.StatusUnauthorized:
		return core.ErrAuthentication
	case http.StatusForbidden:
		return core.ErrPermission
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusTooManyRequests:
		return core.ErrRateLimit
	case http.StatusBadGateway:
		return core.ErrGateway
	case 529:
		return core.ErrOverloaded
	default:
		return core.ErrAPI
	}
}

func requestIDFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Get("X-Request-ID"))
}

func parseRetryAfterHeader(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &seconds
}

func withDefaultGatewayTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultGatewayRequestTimeout)
}
