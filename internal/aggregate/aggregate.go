// Package aggregate folds consecutive raw events against one element into a
// single history entry.
package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/attention/internal/duration"
	"github.com/lazypower/attention/internal/event"
)

// Meta is what an aggregate knows beyond the event it wraps.
type Meta struct {
	// NumCollapsedEvents is the number of raw events folded in. Always >= 1.
	NumCollapsedEvents int `json:"num_collapsed_events"`

	// EventCountOnCreation is the owning context's user event count at the
	// moment this value was produced.
	EventCountOnCreation int `json:"event_count_on_creation"`

	// Durations are the merged time ranges, oldest first.
	Durations []duration.Duration `json:"durations"`

	// Score is the element's cumulative interest right after this value was
	// recorded. Stamped by the interaction context.
	Score float64 `json:"score"`
}

// Aggregate is a history entry: the latest event folded in, with Date
// rewound to the first one, plus the aggregation metadata.
type Aggregate struct {
	event.Event
	Meta
}

// FromEvent wraps a single event.
func FromEvent(e event.Event, eventCount int) Aggregate {
	return Aggregate{
		Event: e,
		Meta: Meta{
			NumCollapsedEvents:   1,
			EventCountOnCreation: eventCount,
			Durations:            []duration.Duration{duration.Start(e)},
		},
	}
}

// Append returns prev with e folded in. prev is left untouched.
//
// Identity fields come from e, the start date from prev and the end date
// from whichever of the two ends later. Raw interest contributions add up.
// startNewDuration picks between stretching the last duration and opening a
// new one; an entry restored without durations always gets a new one.
func Append(prev Aggregate, e event.Event, eventCount int, startNewDuration bool) Aggregate {
	next := e
	next.Date = prev.Date
	if prev.EndDate.After(e.EndDate) {
		next.EndDate = prev.EndDate
	}
	next.InterestContribution = prev.InterestContribution + e.InterestContribution
	if len(prev.Meta.Durations) == 0 {
		startNewDuration = true
	}

	return Aggregate{
		Event: next,
		Meta: Meta{
			NumCollapsedEvents:   prev.NumCollapsedEvents + 1,
			EventCountOnCreation: eventCount,
			Durations:            duration.ExtendOrAppend(prev.Meta.Durations, e, startNewDuration),
			Score:                prev.Score,
		},
	}
}

// Durations returns a copy of the duration list.
func (a Aggregate) Durations() []duration.Duration {
	if a.Meta.Durations == nil {
		return nil
	}
	out := make([]duration.Duration, len(a.Meta.Durations))
	copy(out, a.Meta.Durations)
	return out
}

// Clone returns a copy that shares no storage with a.
func (a Aggregate) Clone() Aggregate {
	a.Meta.Durations = a.Durations()
	return a
}

// Span returns the wall-clock time covered from the first to the last event.
func (a Aggregate) Span() time.Duration {
	return a.EndDate.Sub(a.Date)
}

// DurationsText renders the duration list in the wire format. An aggregate
// without durations renders as the empty string.
func (a Aggregate) DurationsText() string {
	if a.Meta.Durations == nil {
		return ""
	}
	return duration.FormatList(a.Meta.Durations)
}

// WithDurationsText returns a copy of a with durations parsed from text.
// The empty string and text without brackets mean "no durations";
// a malformed list is an error.
func (a Aggregate) WithDurationsText(text string) (Aggregate, error) {
	ds, err := duration.ParseList(text)
	switch {
	case errors.Is(err, duration.ErrNoData):
		a.Meta.Durations = nil
	case err != nil:
		return a, fmt.Errorf("durations for %q: %w", a.Handle, err)
	default:
		a.Meta.Durations = ds
	}
	return a, nil
}

// Validate checks the invariants a restored aggregate must satisfy.
func (a Aggregate) Validate() error {
	if a.Handle == "" {
		return errors.New("aggregate without handle")
	}
	if a.NumCollapsedEvents < 1 {
		return fmt.Errorf("aggregate %q: %d collapsed events", a.Handle, a.NumCollapsedEvents)
	}
	return a.Event.Validate()
}
