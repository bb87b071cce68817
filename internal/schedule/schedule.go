// Package schedule decides which delivery dates and time slots can still
// be booked.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thomas/lilyan-terminal-go/internal/order"
)

// DateLayout is the wire format of a slot date.
const DateLayout = "2006-01-02"

// Slot is a bookable window. Same-day booking closes at ClosesAtHour.
type Slot struct {
	Label        string
	StartHour    int
	EndHour      int
	ClosesAtHour int
}

// Bounds splits the label into its start and end times.
func (s Slot) Bounds() (start, end string) {
	start, end, _ = strings.Cut(s.Label, " - ")
	return start, end
}

// DefaultSlots are the shop's daily windows.
var DefaultSlots = []Slot{
	{Label: "10:00 AM - 02:00 PM", StartHour: 10, EndHour: 14, ClosesAtHour: 12},
	{Label: "02:00 PM - 06:00 PM", StartHour: 14, EndHour: 18, ClosesAtHour: 16},
	{Label: "06:00 PM - 11:00 PM", StartHour: 18, EndHour: 23, ClosesAtHour: 21},
}

// Selection errors.
var (
	ErrDateInPast  = errors.New("date is in the past")
	ErrSlotClosed  = errors.New("time slot is closed for booking")
	ErrUnknownSlot = errors.New("unknown time slot")
	ErrBadDate     = errors.New("invalid date")
)

// StatusSource reports the latest shop-closed status.
type StatusSource interface {
	Status() Status
}

// Resolver answers availability questions in the shop's time zone.
type Resolver struct {
	Slots    []Slot
	Location *time.Location
	Now      func() time.Time
	Status   StatusSource
}

// NewResolver returns a resolver over DefaultSlots.
func NewResolver(loc *time.Location, status StatusSource) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{Slots: DefaultSlots, Location: loc, Now: time.Now, Status: status}
}

func (r *Resolver) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().In(r.Location)
}

func (r *Resolver) lastClose() int {
	last := 0
	for _, s := range r.Slots {
		if s.ClosesAtHour > last {
			last = s.ClosesAtHour
		}
	}
	return last
}

// TodayClosed reports whether same-day booking is shut, either because the
// shop closed it or because the last slot's cutoff has passed. The clock
// rule also covers the time before the first successful status check.
func (r *Resolver) TodayClosed() bool {
	if r.now().Hour() >= r.lastClose() {
		return true
	}
	if r.Status == nil {
		return false
	}
	st := r.Status.Status()
	return st.Known && st.Closed
}

// Today returns the current date in the shop's zone.
func (r *Resolver) Today() string {
	return r.now().Format(DateLayout)
}

// EarliestDate is today, or tomorrow when today is closed.
func (r *Resolver) EarliestDate() string {
	now := r.now()
	if r.TodayClosed() {
		now = now.AddDate(0, 0, 1)
	}
	return now.Format(DateLayout)
}

// Dates returns n consecutive selectable dates from the earliest.
func (r *Resolver) Dates(n int) []string {
	start, _ := time.ParseInLocation(DateLayout, r.EarliestDate(), r.Location)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.AddDate(0, 0, i).Format(DateLayout))
	}
	return out
}

// ResolveDate rolls a closed today forward to tomorrow.
func (r *Resolver) ResolveDate(date string) (string, error) {
	if _, err := time.ParseInLocation(DateLayout, date, r.Location); err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	today := r.Today()
	switch {
	case date < today:
		return "", ErrDateInPast
	case date == today && r.TodayClosed():
		return r.EarliestDate(), nil
	}
	return date, nil
}

// Open reports whether slot can be booked on date.
func (r *Resolver) Open(date string, slot Slot) bool {
	today := r.Today()
	switch {
	case date < today:
		return false
	case date > today:
		return true
	}
	return !r.TodayClosed() && r.now().Hour() < slot.ClosesAtHour
}

// Available returns the slots bookable on date.
func (r *Resolver) Available(date string) []Slot {
	var out []Slot
	for _, s := range r.Slots {
		if r.Open(date, s) {
			out = append(out, s)
		}
	}
	return out
}

// Select books label on date. A closed today rolls forward to tomorrow.
func (r *Resolver) Select(date, label string) (order.Slot, error) {
	date, err := r.ResolveDate(date)
	if err != nil {
		return order.Slot{}, err
	}

	for _, s := range r.Slots {
		if s.Label != label {
			continue
		}
		if !r.Open(date, s) {
			return order.Slot{}, ErrSlotClosed
		}
		start, end := s.Bounds()
		return order.Slot{Date: date, Label: s.Label, Start: start, End: end}, nil
	}
	return order.Slot{}, fmt.Errorf("%w: %q", ErrUnknownSlot, label)
}

// StillOpen re-checks a previously chosen slot, e.g. when a draft is restored.
func (r *Resolver) StillOpen(s order.Slot) bool {
	for _, slot := range r.Slots {
		if slot.Label == s.Label {
			return r.Open(s.Date, slot)
		}
	}
	return false
}
