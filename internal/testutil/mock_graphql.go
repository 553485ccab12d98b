// Package testutil provides testing utilities for the intervu client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"time"
)

// GraphQLPath is the path the mock serves GraphQL on.
const GraphQLPath = "/api/graphql"

var operationName = regexp.MustCompile(`(?:query|mutation|subscription)\s+([_A-Za-z][_0-9A-Za-z]*)`)

// GraphQLRequest is a decoded request received by the mock.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Operation returns the operation name, or "" for anonymous operations.
func (r GraphQLRequest) Operation() string {
	if m := operationName.FindStringSubmatch(r.Query); m != nil {
		return m[1]
	}
	return ""
}

// MockResponse defines the behavior for a mock GraphQL response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// HandlerFunc answers a decoded GraphQL request.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, req GraphQLRequest)

// MockGraphQL is a configurable mock GraphQL server for testing.
type MockGraphQL struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	requests          []GraphQLRequest
	lastRequestHeader http.Header
}

// NewMockGraphQL creates a new mock GraphQL server.
func NewMockGraphQL() *MockGraphQL {
	mock := &MockGraphQL{
		handlers: make(map[string]HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GraphQLPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		var req GraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errors":[{"message":"invalid request body"}]}`))
			return
		}

		mock.mu.Lock()
		mock.requests = append(mock.requests, req)
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[req.Operation()]
		mock.mu.Unlock()

		if exists {
			handler(w, r, req)
			return
		}

		mock.defaultHandler(w)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockGraphQL) URL() string {
	return m.server.URL
}

// Endpoint returns the full GraphQL endpoint URL.
func (m *MockGraphQL) Endpoint() string {
	return m.server.URL + GraphQLPath
}

// Close shuts down the mock server.
func (m *MockGraphQL) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockGraphQL) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for an operation name.
func (m *MockGraphQL) SetHandler(operation string, handler HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[operation] = handler
}

// SetResponse configures a fixed response for an operation name.
func (m *MockGraphQL) SetResponse(operation string, resp MockResponse) {
	m.SetSequence(operation, resp)
}

// SetSequence answers successive calls of an operation with the given
// responses in order. The last one repeats once the sequence is used up.
func (m *MockGraphQL) SetSequence(operation string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(operation, func(w http.ResponseWriter, _ *http.Request, _ GraphQLRequest) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of GraphQL requests received.
func (m *MockGraphQL) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestsFor returns the requests received for an operation name.
func (m *MockGraphQL) RequestsFor(operation string) []GraphQLRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GraphQLRequest
	for _, req := range m.requests {
		if req.Operation() == operation {
			out = append(out, req)
		}
	}
	return out
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockGraphQL) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

func (m *MockGraphQL) defaultHandler(w http.ResponseWriter) {
	writeResponse(w, NewDataResponse(`{}`))
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func rateLimitHeaders(remaining, reset string) map[string]string {
	return map[string]string{
		"X-RateLimit-Remaining": remaining,
		"X-RateLimit-Reset":     reset,
		"Content-Type":          "application/json; charset=utf-8",
	}
}

// NewDataResponse creates a 200 OK response carrying data.
func NewDataResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":` + data + `}`,
		Headers:    rateLimitHeaders("100", "60"),
	}
}

// NewErrorsResponse creates a 200 OK response with a GraphQL errors array.
func NewErrorsResponse(message, code string) MockResponse {
	item := map[string]any{"message": message}
	if code != "" {
		item["extensions"] = map[string]any{"code": code}
	}
	body, _ := json.Marshal(map[string]any{"data": nil, "errors": []any{item}})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    rateLimitHeaders("100", "60"),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := rateLimitHeaders("0", "30")
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"message":"rate limit exceeded"}]}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `internal server error`,
		Headers:    rateLimitHeaders("95", "60"),
	}
}

// NewBudgetResponse creates a 200 OK response advertising a specific budget.
func NewBudgetResponse(data, remaining, reset string) MockResponse {
	resp := NewDataResponse(data)
	resp.Headers = rateLimitHeaders(remaining, reset)
	return resp
}
