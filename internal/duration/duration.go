// Package duration merges runs of edit and selection events against one
// element into time ranges, and owns the text format those ranges are
// persisted in.
package duration

import (
	"time"

	"github.com/lazypower/attention/internal/event"
)

// Duration is a closed time range covered by one or more collapsed events.
// Modified is set when any event inside the range modified the element.
type Duration struct {
	Begin    time.Time `json:"begin"`
	End      time.Time `json:"end"`
	Modified bool      `json:"modified"`
}

// Equal reports structural equality. Instants are compared with time.Time.Equal
// so the location does not matter.
func (d Duration) Equal(o Duration) bool {
	return d.Begin.Equal(o.Begin) && d.End.Equal(o.End) && d.Modified == o.Modified
}

// Length returns End - Begin.
func (d Duration) Length() time.Duration {
	return d.End.Sub(d.Begin)
}

// Start opens a duration at the event's start date.
func Start(e event.Event) Duration {
	return Duration{Begin: e.Date, End: e.Date, Modified: e.IsModifying()}
}

// ExtendOrAppend folds e into ds and returns a new slice; ds is not modified.
//
// With startNew, a new range [e.Date, e.EndDate] is appended. Otherwise the
// last range is stretched to e.EndDate, never shrunk, and picks up e's
// modified flag. Extending an empty list is a caller bug and panics.
func ExtendOrAppend(ds []Duration, e event.Event, startNew bool) []Duration {
	out := make([]Duration, len(ds), len(ds)+1)
	copy(out, ds)

	if startNew {
		return append(out, Duration{Begin: e.Date, End: e.EndDate, Modified: e.IsModifying()})
	}
	if len(out) == 0 {
		panic("duration: extend called on an empty duration list")
	}
	last := out[len(out)-1]
	end := e.EndDate
	if last.End.After(end) {
		end = last.End
	}
	out[len(out)-1] = Duration{
		Begin:    last.Begin,
		End:      end,
		Modified: last.Modified || e.IsModifying(),
	}
	return out
}

// EqualLists reports whether a and b hold the same durations in order.
func EqualLists(a, b []Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
