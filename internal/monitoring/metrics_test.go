package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("多个实例互不冲突", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewMetrics()
			NewMetrics()
		})
	})

	t.Run("记录投递与提交", func(t *testing.T) {
		m := NewMetrics()
		m.RecordDelivery("email", "success", 120*time.Millisecond)
		m.RecordDelivery("email", "failed", 0)
		m.RecordDelivery("chat", "success", time.Second)
		m.RecordSubmission(ResultAccepted)
		m.RecordRateLimitBlock("memory")

		assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("email", "failed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues(ResultAccepted)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitBlocks.WithLabelValues("memory")))
	})

	t.Run("nil 接收者安全", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordSubmission(ResultHoneypot)
			m.RecordDelivery("sheet", "failed", time.Second)
			m.RecordPanic()
		})
	})

	t.Run("暴露指标", func(t *testing.T) {
		m := NewMetrics()
		m.RecordSubmission(ResultInvalid)

		rec := httptest.NewRecorder()
		m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `leads_submissions_total{result="invalid"} 1`)
	})
}
