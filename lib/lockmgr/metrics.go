package lockmgr

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// managerMetrics are the metrics of one lock manager, labeled with its name.
// They are registered in the default VictoriaMetrics set, managers with the
// same name share their metrics.
type managerMetrics struct {
	acquired         *metrics.Counter
	promotions       *metrics.Counter
	waits            *metrics.Counter
	deadlocks        *metrics.Counter
	releasedFailures *metrics.Counter
	interrupted      *metrics.Counter
	waitTime         *metrics.Histogram
}

func newManagerMetrics(name string) *managerMetrics {
	label := func(metric string) string {
		return fmt.Sprintf(`%s{manager=%q}`, metric, name)
	}
	return &managerMetrics{
		acquired:         metrics.GetOrCreateCounter(label("txlock_locks_acquired_total")),
		promotions:       metrics.GetOrCreateCounter(label("txlock_lock_promotions_total")),
		waits:            metrics.GetOrCreateCounter(label("txlock_lock_waits_total")),
		deadlocks:        metrics.GetOrCreateCounter(label("txlock_deadlocks_total")),
		releasedFailures: metrics.GetOrCreateCounter(label("txlock_lock_released_failures_total")),
		interrupted:      metrics.GetOrCreateCounter(label("txlock_interrupted_waits_total")),
		waitTime:         metrics.GetOrCreateHistogram(label("txlock_lock_wait_seconds")),
	}
}
