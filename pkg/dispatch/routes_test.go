package dispatch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSplitRunPath(t *testing.T) {
	cases := []struct {
		path     string
		wantRun  string
		wantRest string
		wantOK   bool
	}{
		{"/proxy/runs/abc/logs", "abc", "/logs", true},
		{"/proxy/runs/abc", "abc", "/", true},
		{"/proxy/runs/abc/", "abc", "/", true},
		{"/proxy/runs/", "", "", false},
		{"/other/path", "", "", false},
	}
	for _, c := range cases {
		run, rest, ok := splitRunPath(c.path)
		require.Equal(t, c.wantOK, ok, c.path)
		if ok {
			require.Equal(t, c.wantRun, run, c.path)
			require.Equal(t, c.wantRest, rest, c.path)
		}
	}
}

func TestRouteTableRegisterResolveRemove(t *testing.T) {
	rt := NewRouteTable()
	rt.Register("run-1", "127.0.0.1:9000", time.Hour)

	route, ok := rt.resolve("run-1")
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:9000", route.Endpoint)

	rt.Remove("run-1")
	_, ok = rt.resolve("run-1")
	require.False(t, ok)
}

func TestRouteTableExpiryTreatsRouteAsAbsent(t *testing.T) {
	rt := NewRouteTable()
	rt.Register("run-1", "127.0.0.1:9000", -time.Second)

	_, ok := rt.resolve("run-1")
	require.False(t, ok)
}

func TestRouteTableSweepReturnsExpiredRunIDs(t *testing.T) {
	rt := NewRouteTable()
	rt.Register("run-1", "127.0.0.1:9000", -time.Second)
	rt.Register("run-2", "127.0.0.1:9001", time.Hour)

	expired := rt.Sweep()
	require.Equal(t, []string{"run-1"}, expired)

	_, ok := rt.resolve("run-2")
	require.True(t, ok)
}

func TestRouteTableServeHTTPProxies(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/logs", r.URL.Path)
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	rt := NewRouteTable()
	rt.Register("run-1", backend.URL, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/proxy/runs/run-1/logs", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.Equal(t, "ok", string(body))
}

func TestRouteTableServeHTTPUnknownRunIsNotFound(t *testing.T) {
	rt := NewRouteTable()
	req := httptest.NewRequest(http.MethodGet, "/proxy/runs/missing/logs", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
