package fallback

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/socialpulse/harvester/internal/acquire/metrics"
)

func TestCooldownExpiryClearsCoolingGauge(t *testing.T) {
	now := time.Now()
	st := newStateTable(func() time.Time { return now })

	st.coolDown("slow-mirror", time.Minute, "forbidden")
	if got := testutil.ToFloat64(metrics.BackendCooling.WithLabelValues("slow-mirror")); got != 1 {
		t.Fatalf("Expected cooling gauge 1, got %v", got)
	}
	if st.available("slow-mirror") {
		t.Fatal("Expected backend unavailable while cooling")
	}

	// The gauge clears on the transition back to available, not on a health
	// snapshot.
	now = now.Add(2 * time.Minute)
	if !st.available("slow-mirror") {
		t.Fatal("Expected backend available after cooldown expiry")
	}
	if got := testutil.ToFloat64(metrics.BackendCooling.WithLabelValues("slow-mirror")); got != 0 {
		t.Errorf("Expected cooling gauge cleared, got %v", got)
	}
}
