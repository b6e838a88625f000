package query

import (
	"time"

	"github.com/orneryd/graphdb/pkg/errs"
)

// checkInterval is the "every ~1000 emitted matches" cadence a running
// query consults its deadline at.
const checkInterval = 1000

// Deadline is a wall-clock cutoff Execute consults periodically rather
// than on every row, so the check never dominates a fast query's cost.
// A zero Deadline never expires.
type Deadline struct {
	at time.Time
}

// NewDeadline builds a Deadline d from now; d<=0 builds a Deadline that
// never expires (the corpus's default_timeout of 0 means unbounded).
func NewDeadline(d time.Duration) Deadline {
	if d <= 0 {
		return Deadline{}
	}
	return Deadline{at: time.Now().Add(d)}
}

func (d Deadline) expired() bool {
	return !d.at.IsZero() && time.Now().After(d.at)
}

// deadlineChecker counts emitted matches across a single Execute call
// and raises errs.Timeout the first time a checkInterval boundary is
// crossed after the deadline has passed.
type deadlineChecker struct {
	deadline Deadline
	count    int
}

// tickBy advances the running count by n newly emitted bindings and
// checks the deadline only when a checkInterval boundary was crossed.
func (c *deadlineChecker) tickBy(n int) error {
	if n <= 0 {
		return nil
	}
	before := c.count / checkInterval
	c.count += n
	after := c.count / checkInterval
	if after > before && c.deadline.expired() {
		return errs.New(errs.Timeout, "query exceeded deadline after %d emitted matches", c.count)
	}
	return nil
}
