package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	s := New(":0", db, "release", 0)

	mock.ExpectPing()
	w := get(s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"connected"`)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	w = get(s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealth_NoDatabase(t *testing.T) {
	w := get(New(":0", nil, "release", 0), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")
}

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func TestMountAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "rollup_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(2)

	s := New(":0", nil, "release", 0)
	s.Mount(pingRoutes{})
	s.EnableMetrics("/metrics", reg)

	w := get(s, "/v1/ping")
	assert.Equal(t, "pong", w.Body.String())

	w = get(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "rollup_test_total 2"))
}
