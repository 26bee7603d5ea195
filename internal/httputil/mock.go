package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockResponse is one canned reply. A non-nil Error is returned as a
// transport failure.
type MockResponse struct {
	StatusCode int
	Body       string
	Error      error
}

// MockHTTPClient replays queued responses in order and records what was
// sent. Once the queue is drained every request gets an empty 200.
type MockHTTPClient struct {
	mu       sync.Mutex
	queue    []MockResponse
	Requests []*http.Request
	Bodies   []string
}

func NewMockHTTPClient() *MockHTTPClient { return &MockHTTPClient{} }

// AddResponse queues a reply and returns m for chaining.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	return m.enqueue(MockResponse{StatusCode: status, Body: body})
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	return m.enqueue(MockResponse{Error: err})
}

func (m *MockHTTPClient) enqueue(r MockResponse) *MockHTTPClient {
	m.mu.Lock()
	m.queue = append(m.queue, r)
	m.mu.Unlock()
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var sent []byte
	if req.Body != nil {
		sent, _ = io.ReadAll(req.Body)
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.Bodies = append(m.Bodies, string(sent))
	next := MockResponse{StatusCode: http.StatusOK}
	if len(m.queue) > 0 {
		next, m.queue = m.queue[0], m.queue[1:]
	}
	m.mu.Unlock()

	if next.Error != nil {
		return nil, next.Error
	}
	return &http.Response{
		StatusCode: next.StatusCode,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(next.Body)),
		Request:    req,
	}, nil
}
