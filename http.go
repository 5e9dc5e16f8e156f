package homeai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	headerAuthorization = "Authorization"
	headerAccept        = "Accept"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	headerRequestID     = "X-Request-ID"
	contentTypeJSON     = "application/json"
	sdkUserAgent        = "homeai-go/1.0.0"
)

// request describes one API call. route is the path template used as the
// metrics label, so job ids do not explode label cardinality.
type request struct {
	method string
	path   string
	route  string
	query  url.Values
	body   interface{}
	token  string
}

// doRequest performs one HTTP exchange. It never retries.
//
// A JSON response is decoded into result; a non-JSON response is only
// accepted when result is a *string. A 401 invalidates the session token that
// was sent with the request.
func (c *Client) doRequest(ctx context.Context, r request, result interface{}) error {
	if c.baseURL == "" {
		return ErrBaseURLRequired
	}
	if r.route == "" {
		r.route = r.path
	}

	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	// Prepare request body
	var bodyReader io.Reader
	if r.body != nil {
		bodyBytes, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("homeai: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("homeai: create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerUserAgent, c.userAgent)
	req.Header.Set(headerRequestID, requestID)
	if r.body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	if r.token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeRequest(r.method, r.route, "error", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("homeai: %s %s: %w", r.method, r.route, ctxErr)
		}
		c.logger.Warn("api unreachable",
			slog.String("method", r.method),
			slog.String("route", r.route),
			slog.String("error", err.Error()),
		)
		return &NetworkError{BaseURL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observeRequest(r.method, r.route, "error", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("homeai: %s %s: %w", r.method, r.route, ctxErr)
		}
		return &NetworkError{BaseURL: c.baseURL, Err: fmt.Errorf("read response body: %w", err)}
	}

	c.metrics.observeRequest(r.method, r.route, strconv.Itoa(resp.StatusCode), time.Since(start))
	c.logger.Debug("api request",
		slog.String("method", r.method),
		slog.String("route", r.route),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
		slog.Duration("elapsed", time.Since(start)),
	)

	isJSON := isJSONContentType(resp.Header.Get(headerContentType))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.Sessions.invalidate(r.token)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Detail:     errorDetail(respBody, isJSON),
			RequestID:  requestID,
		}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}

	if raw, ok := result.(*string); ok && !isJSON {
		*raw = string(respBody)
		return nil
	}
	if !isJSON {
		return &DecodeError{Err: fmt.Errorf("expected %s, got %q", contentTypeJSON, resp.Header.Get(headerContentType))}
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return decodeError(err)
	}
	return nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, r request, result interface{}) error {
	r.method = http.MethodGet
	return c.doRequest(ctx, r, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, r request, result interface{}) error {
	r.method = http.MethodPost
	return c.doRequest(ctx, r, result)
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(ct, contentTypeJSON)
	}
	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// errorDetail extracts a human-readable detail from an error body.
func errorDetail(body []byte, isJSON bool) string {
	if !isJSON {
		return strings.TrimSpace(string(body))
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return compactJSON(body)
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return compactJSON(payload.Detail)
}

func compactJSON(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return strings.TrimSpace(string(b))
	}
	return buf.String()
}

// decodeError converts encoding/json failures into a DecodeError with a path.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DecodeError{Path: typeErr.Field, Err: err}
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr
	}
	return &DecodeError{Err: err}
}
