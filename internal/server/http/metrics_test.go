package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/keygate/internal/limiter"
)

func TestMetrics_RecordsRequestsAndRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	lim := &fakeLimiter{allow: true}
	r := NewRouter(Deps{
		Accounts:   &fakeAccounts{},
		Authorizer: &fakeAuthz{},
		Limiter:    lim,
		Metrics:    m,
		Log:        zaptest.NewLogger(t),
	})

	do(t, r, http.MethodPost, "/login", map[string]string{"email": "a@b.co", "password": "pw"})
	lim.allow, lim.retry = false, time.Second
	do(t, r, http.MethodPost, "/login", map[string]string{"email": "a@b.co", "password": "pw"})

	ok := prometheus.Labels{"method": http.MethodPost, "route": "/login", "status": "200"}
	limited := prometheus.Labels{"method": http.MethodPost, "route": "/login", "status": "429"}
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.With(ok)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.With(limited)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Limited.WithLabelValues(limiter.BucketAccount)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	require.Positive(t, testutil.CollectAndCount(m.Duration))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "keygate_http_requests_total"))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	require.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var m *Metrics
	r := gin.New()
	r.Use(m.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	m.limited("data")
}
