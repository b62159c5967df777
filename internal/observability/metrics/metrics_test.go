package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionLifecycleMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionRequested()
	m.RecordSessionRequested()
	m.RecordSessionRejected("language_mismatch")
	m.RecordSessionStarted()

	if got := testutil.ToFloat64(m.SessionsRequested); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsRejected.WithLabelValues("language_mismatch")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}

	m.RecordSessionCompleted("final")

	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("expected 0 active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCompleted.WithLabelValues("final")); got != 1 {
		t.Errorf("expected 1 final outcome, got %v", got)
	}
}

func TestRecordListenerCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordListenerCall("results", "")
	m.RecordListenerCall("results", "gone")

	if got := testutil.ToFloat64(m.ListenerCalls.WithLabelValues("results")); got != 2 {
		t.Errorf("expected 2 calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.ListenerFailures.WithLabelValues("results", "gone")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}

func TestRecordKafkaPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordKafkaPublish("t", "final", nil, 0.01)
	m.RecordKafkaPublish("t", "final", errors.New("down"), 0.02)

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("t", "final")); got != 2 {
		t.Errorf("expected 2 publishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("t", "final")); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}
