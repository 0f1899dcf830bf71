package dispatch

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"
)

// routePrefix is the fixed mount point every proxy route lives under:
// /proxy/runs/<run>/{**}.
const routePrefix = "/proxy/runs/"

// Route is a single-backend, TTL-scoped proxy mapping from a run ID to
// the runtime endpoint serving it: no host matching, no load
// balancing, no TLS termination, just a run ID to backend endpoint
// with an expiry.
type Route struct {
	RunID     string
	Endpoint  string
	ExpiresAt time.Time
}

// RouteTable owns the live set of proxy routes, one per active run.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]*Route
}

// NewRouteTable creates an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{routes: make(map[string]*Route)}
}

// Register installs (or refreshes) the route for runID, pointing at
// endpoint, expiring after ttl.
func (t *RouteTable) Register(runID, endpoint string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[runID] = &Route{RunID: runID, Endpoint: endpoint, ExpiresAt: time.Now().Add(ttl)}
}

// Remove drops the route for runID, if any.
func (t *RouteTable) Remove(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, runID)
}

// resolve returns the live route for runID, treating an expired entry
// as absent.
func (t *RouteTable) resolve(runID string) (*Route, bool) {
	t.mu.RLock()
	r, ok := t.routes[runID]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(r.ExpiresAt) {
		return nil, false
	}
	return r, true
}

// Count returns the number of routes currently registered, including
// any past their TTL that have not yet been swept. Used by the
// metrics collector to report live proxy route pressure.
func (t *RouteTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// Sweep removes every route past its TTL and returns the run IDs
// dropped, so the caller can publish a route.expired event per run.
func (t *RouteTable) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, r := range t.routes {
		if now.After(r.ExpiresAt) {
			expired = append(expired, id)
			delete(t.routes, id)
		}
	}
	return expired
}

// ServeHTTP reverse-proxies a request under routePrefix to the run's
// registered runtime endpoint (httputil.NewSingleHostReverseProxy plus
// X-Forwarded header injection), with routing collapsed to a single
// run-ID path-segment lookup.
func (t *RouteTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID, rest, ok := splitRunPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	route, ok := t.resolve(runID)
	if !ok {
		http.Error(w, "proxy route not found or expired", http.StatusNotFound)
		return
	}

	target, err := url.Parse(route.Endpoint)
	if err != nil {
		http.Error(w, "invalid runtime endpoint", http.StatusBadGateway)
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		req.URL.Path = rest
		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", r.Host)
		req.Header.Set("X-Forwarded-Proto", schemeOf(r))
		if clientIP := r.RemoteAddr; clientIP != "" {
			req.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	proxy.ServeHTTP(w, r)
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// splitRunPath parses "/proxy/runs/<run>/rest..." into (run, "/rest...", true).
func splitRunPath(path string) (runID, rest string, ok bool) {
	if !strings.HasPrefix(path, routePrefix) {
		return "", "", false
	}
	trimmed := strings.TrimPrefix(path, routePrefix)
	idx := strings.Index(trimmed, "/")
	if idx < 0 {
		return trimmed, "/", trimmed != ""
	}
	runID = trimmed[:idx]
	rest = trimmed[idx:]
	if rest == "" {
		rest = "/"
	}
	return runID, rest, runID != ""
}
