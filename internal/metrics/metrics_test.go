package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics_Recorders(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.ObserveResolve("pppoe", "exact-path", "matched", 120*time.Millisecond)
	m.StageError("or-query")
	m.CacheRequest("hit")
	m.CacheFetch("ok", 42)
	m.ACSRequest("GET", "200")
	m.ChatCommand("cek")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolveTotal.WithLabelValues("pppoe", "exact-path", "matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("or-query")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.CacheSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatCommandTotal.WithLabelValues("cek")))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "resolve_total"))
}

func TestAppMetrics_NilSafe(t *testing.T) {
	var m *AppMetrics
	assert.NotPanics(t, func() {
		m.ObserveResolve("phone", "none", "not-found", time.Second)
		m.StageError("regex")
		m.CacheRequest("miss")
		m.CacheFetch("error", 0)
		m.ACSRequest("PUT", "500")
		m.BreakerState(1)
		m.ChatCommand("help")
	})
}
