package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runixer/rara/internal/testutil"
)

func TestInstrumentHandler_RecordsStatus(t *testing.T) {
	_, h := newTestServer(t, new(MockRunner))
	srv := httptest.NewServer(h)
	defer srv.Close()
	metrics := testutil.NewMetricsHelper(srv.URL)

	before, err := metrics.ScrapeMetrics()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/analyze")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	after, err := metrics.ScrapeMetrics()
	require.NoError(t, err)

	labels := map[string]string{"handler": "analyze", "method": "GET", "status": "405"}
	testutil.AssertMetricIncremented(t, before, after, "rara_http_requests_total", labels)
	testutil.AssertMetricExists(t, after, "rara_http_request_duration_seconds_count", labels)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(rr)
	assert.Equal(t, http.StatusOK, rw.statusCode)

	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Same(t, rr, rw.Unwrap())
}
