package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/omochice/chatsync/internal/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.EventReceived("new_message")
	m.EventReceived("new_message")
	m.CommandSent("mark_read")
	m.CommandDropped("typing_start")
	m.Reconnecting()
	m.SetConnected(true)

	if got := testutil.ToFloat64(m.EventsReceived.WithLabelValues("new_message")); got != 2 {
		t.Errorf("events_received_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CommandsSent.WithLabelValues("mark_read")); got != 1 {
		t.Errorf("commands_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CommandsDropped.WithLabelValues("typing_start")); got != 1 {
		t.Errorf("commands_dropped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReconnectAttempts); got != 1 {
		t.Errorf("reconnect_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}

	m.SetConnected(false)
	if got := testutil.ToFloat64(m.Connected); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 5 {
		t.Errorf("gathered %d families, want 5", len(families))
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	// Should not panic
	m.EventReceived("x")
	m.CommandSent("x")
	m.CommandDropped("x")
	m.Reconnecting()
	m.SetConnected(true)
}
