package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTSMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOTSMetricsWith(reg).(*otsMetrics)

	m.RecordProcedure("oacp", "READ", "Success", time.Millisecond)
	m.RecordProcedure("oacp", "READ", "Success", time.Millisecond)
	m.RecordProcedure("olcp", "FIRST", "NoObject", time.Microsecond)
	m.RecordTransfer("read", 100)
	m.RecordTransfer("read", 0)
	m.RecordTransferAborted("write", "disconnect")
	m.SetSessions(3)
	m.SetObjects(12)
	m.RecordIndication("oacp")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.proceduresTotal.WithLabelValues("oacp", "READ", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proceduresTotal.WithLabelValues("olcp", "FIRST", "NoObject")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.transferBytes.WithLabelValues("read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfersAborted.WithLabelValues("write", "disconnect")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.objects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indications.WithLabelValues("oacp")))
}

func TestS3Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewS3MetricsWith(reg).(*s3Metrics)

	m.ObserveOperation("GetObject", 20*time.Millisecond, nil)
	m.ObserveOperation("PutObject", 30*time.Millisecond, errors.New("boom"))
	m.RecordBytes("read", 512)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("GetObject", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("PutObject", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("PutObject")))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("read")))
}

func TestTCPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTCPMetricsWith(reg).(*tcpMetrics)

	m.RecordConnectionAccepted()
	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.SetActiveConnections(1)
	m.RecordFrame("in", tcp.FrameWrite)
	m.RecordBytes("out", 244)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("in", "write")))
	assert.Equal(t, 244.0, testutil.ToFloat64(m.bytes.WithLabelValues("out")))
}

func TestCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCacheMetricsWith(reg).(*cacheMetrics)

	m.ObserveWrite(100, time.Microsecond)
	m.ObserveWrite(50, time.Microsecond)
	m.ObserveFlush(150, time.Millisecond, nil)
	m.ObserveFlush(10, time.Millisecond, errors.New("boom"))
	m.RecordBufferCount(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.writes))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.writeBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("error")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.flushBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.buffers))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewTCPMetricsWith(reg)
	assert.Panics(t, func() { NewTCPMetricsWith(reg) })
}

func TestHandlerWithoutRegistry(t *testing.T) {
	if IsEnabled() {
		t.Skip("global registry already initialized")
	}
	h := newHandler(9090)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "DittoOTS")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
