package scheduler

// CreditMeter is the explicit accumulator behind the execution loop's
// completion hook. It counts units of work and declines further work
// once a non-admin client's ceiling is reached.
type CreditMeter struct {
	limit     int
	used      int
	unlimited bool
}

// NewCreditMeter creates a meter with the given ceiling. An unlimited
// meter never declines; admins and the operator pass use it.
func NewCreditMeter(limit int, unlimited bool) *CreditMeter {
	return &CreditMeter{limit: limit, unlimited: unlimited}
}

// Allow records one completed unit and reports whether another unit may
// be performed. It is handed to the execution loop as its completion
// hook.
func (m *CreditMeter) Allow() bool {
	m.used++
	if m.unlimited {
		return true
	}
	return m.used < m.limit
}

// Used returns the number of units recorded.
func (m *CreditMeter) Used() int {
	return m.used
}

// Consumed computes the billable amount for a finished run: the work
// actually done, capped by the ceiling and the reported total.
func (m *CreditMeter) Consumed(totalComments int) int {
	if m.unlimited {
		return 0
	}
	return min3(m.limit, m.used, totalComments)
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
