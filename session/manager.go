package session

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/utils"
)

const (
	// maxRequestsPerSession retires a session once its counter passes this.
	maxRequestsPerSession = 50
	// failure retirement: every 10th failure past this total forces rotation.
	failureRetireFloor = 20
)

var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

var acceptLanguagePool = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8,es;q=0.5",
	"en-GB,en;q=0.9,en-US;q=0.8",
	"en-US,en;q=0.9,fr;q=0.4",
}

// Stats summarizes the session registry for diagnostics.
type Stats struct {
	ActiveSessions  int `json:"activeSessions"`
	RetiredSessions int `json:"retiredSessions"`
	TotalRequests   int `json:"totalRequests"`
	TotalFailures   int `json:"totalFailures"`
	ProxyEndpoints  int `json:"proxyEndpoints"`
}

// Manager issues rotating browser identities and tracks their health. The
// registry is owned state: constructed at startup, swept by a rotation
// ticker, closed at shutdown.
type Manager struct {
	logger *utils.Logger
	client *http.Client

	proxyEndpoints   []string
	proxyUsername    string
	proxyPassword    string
	rotationInterval time.Duration

	transports map[string]*http.Transport

	// Human-like delay bounds applied before every dispatch.
	minDelay time.Duration
	maxDelay time.Duration

	mu         sync.Mutex
	sessions   map[string]*models.ProxySession
	proxyIndex int
	retired    int

	done   chan struct{}
	ticker *time.Ticker
	wg     sync.WaitGroup
}

// NewManager builds a Manager from configuration and starts the background
// rotation sweep.
func NewManager(cfg *config.Config, logger *utils.Logger) *Manager {
	m := &Manager{
		logger:           logger,
		client:           &http.Client{Timeout: cfg.RequestTimeout},
		proxyEndpoints:   cfg.ProxyEndpoints,
		proxyUsername:    cfg.ProxyUsername,
		proxyPassword:    cfg.ProxyPassword,
		rotationInterval: cfg.RotationInterval,
		transports:       make(map[string]*http.Transport),
		minDelay:         500 * time.Millisecond,
		maxDelay:         2000 * time.Millisecond,
		sessions:         make(map[string]*models.ProxySession),
		done:             make(chan struct{}),
	}

	m.ticker = time.NewTicker(m.rotationInterval)
	m.wg.Add(1)
	go m.rotationLoop()

	return m
}

// CreateSession issues a fresh identity: the next proxy endpoint in
// rotation, a random user-agent and a plausible randomized header set.
func (m *Manager) CreateSession() *models.ProxySession {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpoint := ""
	if len(m.proxyEndpoints) > 0 {
		endpoint = m.proxyEndpoints[m.proxyIndex%len(m.proxyEndpoints)]
		m.proxyIndex++
	}

	s := &models.ProxySession{
		ID:            uuid.New().String(),
		ProxyEndpoint: endpoint,
		UserAgent:     userAgentPool[rand.Intn(len(userAgentPool))],
		Headers:       randomHeaders(),
		Cookies:       make(map[string]string),
		LastUsed:      time.Now(),
		IsActive:      true,
	}
	m.sessions[s.ID] = s

	m.logger.Debug("[session] Created %s (proxy=%q ua=%.40q...)", s.ID, endpoint, s.UserAgent)
	return s
}

// Session returns the session with the given id, or an error if it is
// unknown or already retired.
func (m *Manager) Session(id string) (*models.ProxySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: unknown id %s", id)
	}
	if !s.IsActive {
		return nil, fmt.Errorf("session: %s is retired", id)
	}
	return s, nil
}

// Request dispatches an HTTP GET to target under the session's identity.
// A randomized human-like delay is applied before dispatch. Failures are
// returned to the caller; the manager never retries on its own.
func (m *Manager) Request(sessionID, target string) ([]byte, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return nil, err
	}

	m.humanDelay()

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		m.recordFailure(s)
		return nil, fmt.Errorf("session: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	client, err := m.clientFor(s)
	if err != nil {
		m.recordFailure(s)
		return nil, err
	}

	m.touch(s)

	resp, err := client.Do(req)
	if err != nil {
		m.recordFailure(s)
		return nil, fmt.Errorf("session: request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		m.recordFailure(s)
		return nil, fmt.Errorf("session: request %s: status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.recordFailure(s)
		return nil, fmt.Errorf("session: read body: %w", err)
	}
	return body, nil
}

// ProxyURL parses the session's proxy endpoint, with the configured
// credentials embedded, or nil when direct.
func (m *Manager) ProxyURL(s *models.ProxySession) (*url.URL, error) {
	if s.ProxyEndpoint == "" {
		return nil, nil
	}
	u, err := url.Parse(s.ProxyEndpoint)
	if err != nil {
		return nil, err
	}
	if m.proxyUsername != "" {
		u.User = url.UserPassword(m.proxyUsername, m.proxyPassword)
	}
	return u, nil
}

// Credentials returns the proxy pool's auth pair (empty when the pool is
// unauthenticated).
func (m *Manager) Credentials() (username, password string) {
	return m.proxyUsername, m.proxyPassword
}

// clientFor returns an HTTP client routed through the session's proxy
// (with credentials), or the direct client. Transports are cached per
// endpoint so connections are pooled.
func (m *Manager) clientFor(s *models.ProxySession) (*http.Client, error) {
	if s.ProxyEndpoint == "" {
		return m.client, nil
	}

	m.mu.Lock()
	t, ok := m.transports[s.ProxyEndpoint]
	m.mu.Unlock()
	if !ok {
		u, err := m.ProxyURL(s)
		if err != nil {
			return nil, fmt.Errorf("session: proxy endpoint %q: %w", s.ProxyEndpoint, err)
		}
		t = &http.Transport{Proxy: http.ProxyURL(u)}
		m.mu.Lock()
		m.transports[s.ProxyEndpoint] = t
		m.mu.Unlock()
	}

	return &http.Client{Timeout: m.client.Timeout, Transport: t}, nil
}

// RecordUse bumps usage counters for a navigation performed outside the
// manager's own HTTP path (browser page loads).
func (m *Manager) RecordUse(id string) {
	if s, err := m.Session(id); err == nil {
		m.touch(s)
	}
}

// RecordFailure counts an external navigation failure against a session.
func (m *Manager) RecordFailure(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		m.recordFailure(s)
	}
}

// touch bumps usage counters and applies the request-count retirement
// invariant.
func (m *Manager) touch(s *models.ProxySession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.RequestCount++
	s.LastUsed = time.Now()
	if s.RequestCount > maxRequestsPerSession && s.IsActive {
		s.IsActive = false
		m.retired++
		m.logger.Debug("[session] Retired %s after %d requests", s.ID, s.RequestCount)
	}
}

// recordFailure counts a failed request and force-retires chronically
// failing sessions: every 10th failure past the floor.
func (m *Manager) recordFailure(s *models.ProxySession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.FailureCount++
	if s.IsActive && s.FailureCount > failureRetireFloor && s.FailureCount%10 == 0 {
		s.IsActive = false
		m.retired++
		m.logger.Warn("[session] Force-retired %s after %d failures", s.ID, s.FailureCount)
	}
}

// ActiveSessionCount returns the number of live sessions.
func (m *Manager) ActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if s.IsActive {
			n++
		}
	}
	return n
}

// CleanupInactiveSessions drops retired sessions from the registry and
// returns how many were removed.
func (m *Manager) CleanupInactiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if !s.IsActive {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// GetStats reports aggregate registry health.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{ProxyEndpoints: len(m.proxyEndpoints), RetiredSessions: m.retired}
	for _, s := range m.sessions {
		if s.IsActive {
			st.ActiveSessions++
		}
		st.TotalRequests += s.RequestCount
		st.TotalFailures += s.FailureCount
	}
	return st
}

// sweepRetirements applies the idle-time retirement invariant to every
// live session.
func (m *Manager) sweepRetirements() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, s := range m.sessions {
		if !s.IsActive {
			continue
		}
		if s.RequestCount > maxRequestsPerSession || now.Sub(s.LastUsed) > m.rotationInterval {
			s.IsActive = false
			m.retired++
			m.logger.Debug("[session] Rotation sweep retired %s (count=%d idle=%v)",
				s.ID, s.RequestCount, now.Sub(s.LastUsed))
		}
	}
}

func (m *Manager) rotationLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ticker.C:
			m.mu.Lock()
			m.proxyIndex++ // advance the pool pointer each period
			m.mu.Unlock()
			m.sweepRetirements()
			m.CleanupInactiveSessions()
		case <-m.done:
			return
		}
	}
}

// Close stops the rotation ticker and retires every session.
func (m *Manager) Close() {
	m.ticker.Stop()
	close(m.done)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.IsActive = false
	}
}

func (m *Manager) humanDelay() {
	if m.maxDelay <= m.minDelay {
		return
	}
	d := m.minDelay + time.Duration(rand.Int63n(int64(m.maxDelay-m.minDelay)))
	time.Sleep(d)
}

// randomHeaders builds a plausible browser header set with a randomized
// Accept-Language.
func randomHeaders() map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           acceptLanguagePool[rand.Intn(len(acceptLanguagePool))],
		"Accept-Encoding":           "gzip, deflate, br",
		"Cache-Control":             "no-cache",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
	}
}
