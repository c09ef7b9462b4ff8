package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Метрики регистрируются в глобальном реестре, поэтому инициализация
// выполняется один раз на тестовый процесс.
var testMetrics = InitMetrics("netembed_test", "")

func TestGet_ReturnsSingleton(t *testing.T) {
	assert.Same(t, testMetrics, Get())
}

func TestObserveSolve(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.SolveOperationsTotal.WithLabelValues("combined", "ok"))

	testMetrics.ObserveSolve("combined", "ok", 50*time.Millisecond)

	after := testutil.ToFloat64(testMetrics.SolveOperationsTotal.WithLabelValues("combined", "ok"))
	assert.InDelta(t, before+1, after, 1e-9)
}

func TestGauges(t *testing.T) {
	testMetrics.ObjectiveValue.WithLabelValues("combined").Set(3004000)
	assert.InDelta(t, 3004000, testutil.ToFloat64(testMetrics.ObjectiveValue.WithLabelValues("combined")), 1e-9)

	testMetrics.MaxOverSubscription.WithLabelValues("cpu").Set(0.75)
	assert.InDelta(t, 0.75, testutil.ToFloat64(testMetrics.MaxOverSubscription.WithLabelValues("cpu")), 1e-9)
}

func TestHandler(t *testing.T) {
	testMetrics.CacheHitsTotal.Inc()

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "netembed_test_cache_hits_total")
}
