package busq

import "time"

// Poller is implemented by drivers whose requests are split around a
// device specific gap, such as a measurement trigger and the result fetch.
// Poll submits the deferred phase once it is due and reports whether a
// phase is still waiting. It must be called from the goroutine driving
// the scheduler.
type Poller interface {
	Poll() bool
}

// Deferred holds one follow-up submission until its due time. Drivers arm
// it from a completion handler and fire it from Poll.
type Deferred struct {
	due    time.Time
	submit func() bool
}

// Arm replaces any waiting submission. submit reports whether the record
// was queued.
func (d *Deferred) Arm(due time.Time, submit func() bool) {
	d.due = due
	d.submit = submit
}

func (d *Deferred) Armed() bool {
	return d.submit != nil
}

func (d *Deferred) Disarm() {
	d.submit = nil
}

// Fire runs the submission if it is due at now and reports whether one is
// still waiting afterwards. A rejected submission stays armed.
func (d *Deferred) Fire(now time.Time) bool {
	if d.submit == nil {
		return false
	}
	if now.Before(d.due) {
		return true
	}
	if !d.submit() {
		return true
	}
	d.submit = nil
	return false
}
