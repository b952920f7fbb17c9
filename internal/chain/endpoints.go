package chain

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// EndpointHealth represents the health status of the RPC endpoints
type EndpointHealth struct {
	CurrentURL       string    `json:"currentUrl"`
	OnPrimary        bool      `json:"onPrimary"`
	TotalRequests    int64     `json:"totalRequests"`
	FailedRequests   int64     `json:"failedRequests"`
	LastSuccess      time.Time `json:"lastSuccess"`
	LastFailure      time.Time `json:"lastFailure"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	IsHealthy        bool      `json:"isHealthy"`
}

// Endpoints tracks a primary and optional secondary RPC URL and which one is active
type Endpoints struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	totalRequests    int64
	failedRequests   int64
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int

	maxConsecutiveFails int
}

// NewEndpoints creates endpoint tracking with primary and optional secondary URLs
func NewEndpoints(primaryURL, secondaryURL string) (*Endpoints, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &Endpoints{
		primaryURL:          primaryURL,
		secondaryURL:        secondaryURL,
		currentURL:          primaryURL,
		maxConsecutiveFails: 5,
	}, nil
}

// Current returns the active URL
func (e *Endpoints) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentURL
}

// Failover switches between primary and secondary.
// It fails when no secondary is configured.
func (e *Endpoints) Failover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.secondaryURL == "" {
		return fmt.Errorf("no secondary endpoint configured")
	}

	if e.currentURL == e.primaryURL {
		e.currentURL = e.secondaryURL
	} else {
		e.currentURL = e.primaryURL
	}
	return nil
}

// RecordSuccess records a successful request
func (e *Endpoints) RecordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalRequests++
	e.lastSuccess = time.Now()
	e.consecutiveFails = 0
}

// RecordFailure records a failed request
func (e *Endpoints) RecordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalRequests++
	e.failedRequests++
	e.lastFailure = time.Now()
	e.consecutiveFails++
}

// Health returns a snapshot of endpoint health
func (e *Endpoints) Health() *EndpointHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &EndpointHealth{
		CurrentURL:       redactURL(e.currentURL),
		OnPrimary:        e.currentURL == e.primaryURL,
		TotalRequests:    e.totalRequests,
		FailedRequests:   e.failedRequests,
		LastSuccess:      e.lastSuccess,
		LastFailure:      e.lastFailure,
		ConsecutiveFails: e.consecutiveFails,
		IsHealthy:        e.consecutiveFails < e.maxConsecutiveFails,
	}
}

// redactURL drops the path and query, where providers embed API keys
func redactURL(u string) string {
	scheme := ""
	rest := u
	if i := strings.Index(u, "://"); i >= 0 {
		scheme, rest = u[:i+3], u[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return scheme + rest
}

// shouldFailover reports whether err looks like an endpoint problem rather than a bad request
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "too many requests", "429",
		"timeout", "deadline exceeded",
		"connection refused", "connection reset", "no such host", "eof",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
