package runtime

import (
	"github.com/4rchr4y/moss/internal/fault"
)

// flushQuota counts effects dispatched by one flush.
//
// Callbacks that keep re-enqueueing work (an observer that notifies the
// entity it observes, a defer that defers itself) would otherwise spin the
// flush loop forever.
type flushQuota struct {
	maxSteps int
	current  int
}

func newFlushQuota(maxSteps int) *flushQuota {
	return &flushQuota{maxSteps: maxSteps}
}

// check increments the step counter and reports a violation once the limit
// is passed.
func (q *flushQuota) check() *fault.ContractError {
	q.current++
	if q.current > q.maxSteps {
		return fault.FlushQuotaExceeded(q.current, q.maxSteps)
	}
	return nil
}
