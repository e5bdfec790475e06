// Package testutil provides testing utilities for the fetch pipeline.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// OriginBehavior defines how the mock origin answers one path.
type OriginBehavior struct {
	// FailFirst makes the path answer 500 this many times before
	// succeeding.
	FailFirst int

	// Delay is applied before every response.
	Delay time.Duration

	// Hang makes the path never answer; the handler blocks until the
	// request context is cancelled.
	Hang bool

	// StatusCode overrides the success status (default 200).
	StatusCode int

	// Body overrides the success body.
	Body string
}

// MockOrigin is a configurable origin server for exercising the pipeline
// over real HTTP.
type MockOrigin struct {
	server *httptest.Server

	mu        sync.Mutex
	behaviors map[string]*OriginBehavior
	failures  map[string]int

	// Tracking
	RequestCount int
	active       int
	MaxActive    int
}

// NewMockOrigin creates a mock origin. Paths without configured behavior
// answer 200 with a small payload.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		behaviors: make(map[string]*OriginBehavior),
		failures:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockOrigin) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.active++
	if m.active > m.MaxActive {
		m.MaxActive = m.active
	}
	behavior := m.behaviors[r.URL.Path]
	var failNow bool
	if behavior != nil && m.failures[r.URL.Path] < behavior.FailFirst {
		m.failures[r.URL.Path]++
		failNow = true
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if behavior == nil {
		fmt.Fprintf(w, "ok: %s", r.URL.Path)
		return
	}

	if behavior.Hang {
		<-r.Context().Done()
		return
	}

	if behavior.Delay > 0 {
		select {
		case <-time.After(behavior.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if failNow {
		http.Error(w, "simulated origin failure", http.StatusInternalServerError)
		return
	}

	status := behavior.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if behavior.Body != "" {
		fmt.Fprint(w, behavior.Body)
	} else {
		fmt.Fprintf(w, "ok: %s", r.URL.Path)
	}
}

// SetBehavior configures how the given path responds.
func (m *MockOrigin) SetBehavior(path string, behavior OriginBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behaviors[path] = &behavior
	m.failures[path] = 0
}

// URL returns the base URL of the mock origin.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Requests returns the total number of requests observed.
func (m *MockOrigin) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// MaxConcurrent returns the highest number of simultaneously active
// requests observed.
func (m *MockOrigin) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MaxActive
}

// Close shuts down the mock origin.
func (m *MockOrigin) Close() {
	m.server.Close()
}
