package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(WorkOrderTransitions.WithLabelValues("Closed"))
	WorkOrderTransitions.WithLabelValues("Closed").Inc()
	if got := testutil.ToFloat64(WorkOrderTransitions.WithLabelValues("Closed")); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestMediaBytesObserves(t *testing.T) {
	MediaBytes.Observe(2048)
	if n := testutil.CollectAndCount(MediaBytes); n != 1 {
		t.Errorf("CollectAndCount(MediaBytes) = %d, want 1", n)
	}
}
