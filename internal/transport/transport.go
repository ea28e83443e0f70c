// Package transport holds the pieces shared by the SonarCloud and DefectDojo
// clients: the HTTP client constructor, debug dumping and the APIError type.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/z4ce/sonar2dojo/internal/logging"
)

// maxErrorBody caps how much of a failed response body is kept in an APIError
const maxErrorBody = 2048

// Doer is satisfied by *http.Client
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an http.Client with the given timeout. A zero timeout
// leaves the client without a deadline.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// APIError is returned when a remote API answers with an unexpected status
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d for %s %s", e.StatusCode, e.Method, e.URL)
	}
	return fmt.Sprintf("unexpected status code: %d for %s %s, body: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// NewAPIError consumes the response body and builds an APIError from it
func NewAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.URL = resp.Request.URL.String()
	}
	return apiErr
}

// StatusTransport is an http.RoundTripper that dumps traffic in debug mode
// and answers any status outside 2xx with an *APIError instead of a response.
// It remembers the last exchange for callers whose library hides both.
type StatusTransport struct {
	Next  http.RoundTripper
	Debug Debugger

	mu         sync.Mutex
	lastStatus int
	lastErr    *APIError
}

// RoundTrip implements http.RoundTripper
func (t *StatusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}

	var body []byte
	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			body, _ = io.ReadAll(rc)
			rc.Close()
		}
	}
	t.Debug.Request(req, body)

	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.Debug.Response(resp)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastStatus = resp.StatusCode
	t.lastErr = nil
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := NewAPIError(resp)
		resp.Body.Close()
		t.lastErr = apiErr
		return nil, apiErr
	}
	return resp, nil
}

// Reset forgets the last exchange
func (t *StatusTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastStatus = 0
	t.lastErr = nil
}

// Last returns the status and APIError of the last exchange since Reset
func (t *StatusTransport) Last() (int, *APIError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastStatus, t.lastErr
}

// Debugger dumps requests and responses when the logger is in debug mode
type Debugger struct {
	Log *logging.Logger
}

// Request logs request details if debug is enabled
func (d Debugger) Request(req *http.Request, body []byte) {
	if d.Log == nil || !d.Log.IsDebug() {
		return
	}

	d.Log.Debug("Making request: %s %s", req.Method, req.URL)
	d.Log.Debug("Request headers: %v", redactHeaders(req.Header))

	if body != nil {
		d.Log.Debug("Request body: %s", pretty(body))
	}
}

// Response logs the response body if debug is enabled, leaving it readable
func (d Debugger) Response(resp *http.Response) {
	if d.Log == nil || !d.Log.IsDebug() || resp == nil {
		return
	}

	d.Log.Debug("Response status code: %d", resp.StatusCode)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		d.Log.Debug("Error reading response body: %v", err)
		return
	}
	resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	d.Log.Debug("Response body: %s", pretty(bodyBytes))
}

func pretty(body []byte) string {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err == nil {
		return prettyJSON.String()
	}
	return string(body)
}

func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if auth := out.Get("Authorization"); auth != "" {
		scheme, _, _ := strings.Cut(auth, " ")
		out.Set("Authorization", scheme+" <redacted>")
	}
	return out
}
