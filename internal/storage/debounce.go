package storage

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// pending is a buffered write; a nil value marks a delete.
type pending struct {
	value   []byte
	deleted bool
}

// Debounced coalesces rapid writes to the same key into one write to the
// underlying store after a quiet period. Reads observe buffered values.
type Debounced struct {
	next   Store
	delay  time.Duration
	logger *log.Logger

	mu       sync.Mutex
	pending  map[string]pending
	flushing map[string]pending // batch being written; still visible to Get
	timer    *time.Timer

	flushMu sync.Mutex
}

// Debounce wraps next. A zero delay writes through synchronously.
func Debounce(next Store, delay time.Duration, logger *log.Logger) *Debounced {
	if logger == nil {
		logger = log.Default()
	}
	return &Debounced{
		next:    next,
		delay:   delay,
		logger:  logger.WithPrefix("storage"),
		pending: make(map[string]pending),
	}
}

func (d *Debounced) Get(key string) ([]byte, error) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok {
		p, ok = d.flushing[key]
	}
	d.mu.Unlock()

	if ok {
		if p.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), p.value...), nil
	}
	return d.next.Get(key)
}

func (d *Debounced) Put(key string, value []byte) error {
	if d.delay <= 0 {
		return d.next.Put(key, value)
	}
	d.buffer(key, pending{value: append([]byte(nil), value...)})
	return nil
}

func (d *Debounced) Delete(key string) error {
	if d.delay <= 0 {
		return d.next.Delete(key)
	}
	d.buffer(key, pending{deleted: true})
	return nil
}

func (d *Debounced) buffer(key string, p pending) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[key] = p
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, func() {
			if err := d.Flush(); err != nil {
				d.logger.Warn("deferred flush failed", "err", err)
			}
		})
	} else {
		d.timer.Reset(d.delay)
	}
}

// Flush writes every buffered value now. The first error is returned; the
// remaining keys are still attempted. Reads keep seeing the batch until it
// has been written.
func (d *Debounced) Flush() error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	batch := d.pending
	d.pending = make(map[string]pending)
	d.flushing = batch
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	var first error
	for key, p := range batch {
		var err error
		if p.deleted {
			err = d.next.Delete(key)
		} else {
			err = d.next.Put(key, p.value)
		}
		if err != nil {
			d.logger.Error("write failed", "key", key, "err", err)
			if first == nil {
				first = err
			}
		}
	}

	d.mu.Lock()
	d.flushing = nil
	d.mu.Unlock()
	return first
}
