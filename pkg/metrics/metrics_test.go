package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(RowsScanned.WithLabelValues("metrics_test"))
	RowsScanned.WithLabelValues("metrics_test").Add(12)
	assert.Equal(t, before+12, testutil.ToFloat64(RowsScanned.WithLabelValues("metrics_test")))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	BenignFaults.WithLabelValues("-2147219456").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crmsize_benign_faults_total")
}
