package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/thomas/lilyan-terminal-go/internal/api"
)

// Status is the result of the latest closed-today check. Known is false
// until a check succeeds and again after any failed check.
type Status struct {
	Known          bool
	Closed         bool
	ManuallyClosed bool
	CheckedAt      time.Time
	Err            error
}

// ClosedChecker asks the backend whether today is closed.
type ClosedChecker interface {
	IsTodayClosed(ctx context.Context) (*api.ClosedStatus, error)
}

// Poller refreshes the closed status on an interval.
type Poller struct {
	checker  ClosedChecker
	interval time.Duration
	logger   *log.Logger
	nowFunc  func() time.Time

	mu     sync.RWMutex
	status Status
}

// NewPoller creates a poller. Intervals below one second are raised to one.
func NewPoller(checker ClosedChecker, interval time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Poller{
		checker:  checker,
		interval: interval,
		logger:   logger.WithPrefix("schedule"),
		nowFunc:  time.Now,
	}
}

// Status returns the latest result.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Check polls once and records the outcome.
func (p *Poller) Check(ctx context.Context) Status {
	resp, err := p.checker.IsTodayClosed(ctx)

	st := Status{CheckedAt: p.nowFunc()}
	if err != nil {
		p.logger.Warn("closed status check failed, using clock rule", "err", err)
		st.Err = err
	} else {
		st.Known = true
		st.Closed = resp.IsClosed || resp.ManuallyClosed
		st.ManuallyClosed = resp.ManuallyClosed
	}

	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
	return st
}

// Run checks immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
