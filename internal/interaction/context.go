// Package interaction keeps the interaction history of one context and the
// interest it implies for every element the history touches.
//
// A Context is safe for concurrent use. Each mutating call holds the
// context's lock for its whole duration, so readers only ever observe the
// state before or after a complete ParseEvent, Reset or Restore.
package interaction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/attention/internal/aggregate"
	"github.com/lazypower/attention/internal/event"
	"github.com/lazypower/attention/internal/scaling"
)

// Interest is the live state of one element.
type Interest struct {
	Handle        string    `json:"handle"`
	StructureKind string    `json:"structure_kind"`
	Score         float64   `json:"score"`
	Landmark      bool      `json:"landmark"`
	LastTouched   time.Time `json:"last_touched"`
	Events        int       `json:"events"` // raw events recorded against the element
}

// Interesting reports whether the element carries positive interest.
func (i Interest) Interesting() bool { return i.Score > 0 }

// Context is an append-only interaction history plus per-element interest.
type Context struct {
	id      string
	scaling *scaling.Table

	mu         sync.RWMutex
	history    []aggregate.Aggregate
	interest   map[string]Interest
	userEvents int
}

// New creates an empty context scored by tbl.
func New(id string, tbl *scaling.Table) *Context {
	if tbl == nil {
		tbl = scaling.Defaults()
	}
	return &Context{
		id:       id,
		scaling:  tbl,
		interest: make(map[string]Interest),
	}
}

// ID returns the context identifier.
func (c *Context) ID() string { return c.id }

// Scaling returns the table the context scores with.
func (c *Context) Scaling() *scaling.Table { return c.scaling }

// ParseEvent records e and returns the history entry it produced or updated.
// Events without a handle are ignored and report false.
//
// The element's previous score decays once, then the scaled contribution is
// added. Collapsible events that follow an entry for the same element are
// folded into it: inside the merge window they stretch the last duration,
// past it or before its end they open a new one.
func (c *Context) ParseEvent(e event.Event) (aggregate.Aggregate, bool) {
	agg, ok, _ := c.Record(e, nil)
	return agg, ok
}

// Record is ParseEvent with a persistence step. persist receives the history
// index and the entry before the context changes; if it fails the context is
// left untouched and the error is returned.
func (c *Context) Record(e event.Event, persist func(seq int, a aggregate.Aggregate) error) (aggregate.Aggregate, bool, error) {
	if !e.Resolvable() {
		return aggregate.Aggregate{}, false, nil
	}

	weight := c.scaling.Weight(e.Kind)
	decay := c.scaling.Decay()
	window := c.scaling.MergeWindow()
	landmark := c.scaling.Landmark()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.interest[e.Handle]
	score := st.Score*(1-decay) + weight*e.InterestContribution

	var agg aggregate.Aggregate
	seq := len(c.history)
	userEvent := false
	if n := len(c.history); n > 0 && foldable(c.history[n-1], e) {
		last := c.history[n-1]
		startNew := e.Date.Before(last.EndDate) || e.Date.Sub(last.EndDate) > window
		agg = aggregate.Append(last, e, c.userEvents, startNew)
		seq = n - 1
	} else {
		agg = aggregate.FromEvent(e, c.userEvents)
		userEvent = e.Kind.IsUserEvent()
	}
	agg.Score = score

	if persist != nil {
		if err := persist(seq, agg.Clone()); err != nil {
			return aggregate.Aggregate{}, true, err
		}
	}

	if seq == len(c.history) {
		c.history = append(c.history, agg)
	} else {
		c.history[seq] = agg
	}
	if userEvent {
		c.userEvents++
	}

	st.Handle = e.Handle
	st.StructureKind = e.StructureKind
	st.Score = score
	st.Landmark = score >= landmark
	st.LastTouched = agg.EndDate
	st.Events++
	c.interest[e.Handle] = st

	return agg.Clone(), true, nil
}

func foldable(last aggregate.Aggregate, e event.Event) bool {
	return last.Handle == e.Handle && last.Kind.IsCollapsible() && e.Kind.IsCollapsible()
}

// Reset drops all history and interest.
func (c *Context) Reset() {
	c.mu.Lock()
	c.history = nil
	c.interest = make(map[string]Interest)
	c.userEvents = 0
	c.mu.Unlock()
}

// Restore replaces the context's state with a persisted history. Interest is
// rebuilt from the scores the entries carry.
func (c *Context) Restore(history []aggregate.Aggregate) error {
	for i, a := range history {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("restore %s: entry %d: %w", c.id, i, err)
		}
	}

	entries := make([]aggregate.Aggregate, len(history))
	for i, a := range history {
		entries[i] = a.Clone()
	}
	interest, userEvents := replay(entries, c.scaling.Landmark())

	c.mu.Lock()
	c.history = entries
	c.interest = interest
	c.userEvents = userEvents
	c.mu.Unlock()
	return nil
}

// replay derives per-element interest from a history.
func replay(history []aggregate.Aggregate, landmark float64) (map[string]Interest, int) {
	interest := make(map[string]Interest)
	userEvents := 0
	for _, a := range history {
		st := interest[a.Handle]
		st.Handle = a.Handle
		st.StructureKind = a.StructureKind
		st.Score = a.Score
		st.Landmark = a.Score >= landmark
		st.LastTouched = a.EndDate
		st.Events += a.NumCollapsedEvents
		interest[a.Handle] = st
		if a.Kind.IsUserEvent() {
			userEvents++
		}
	}
	return interest, userEvents
}

// Verify replays the history and checks the result against the live
// interest map. Replay takes each element's score from the latest entry
// stamped with it, so Verify catches a live score that drifted from the
// history but not an entry that was scored wrong in the first place.
// Landmark flags are not compared: they depend on the threshold in force
// when each event was scored.
func (c *Context) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	want, userEvents := replay(c.history, c.scaling.Landmark())
	if userEvents != c.userEvents {
		return fmt.Errorf("context %s: user event count %d, history implies %d", c.id, c.userEvents, userEvents)
	}
	if len(want) != len(c.interest) {
		return fmt.Errorf("context %s: %d tracked elements, history implies %d", c.id, len(c.interest), len(want))
	}
	for h, w := range want {
		got, ok := c.interest[h]
		switch {
		case !ok:
			return fmt.Errorf("context %s: %q missing from interest", c.id, h)
		case got.Score != w.Score:
			return fmt.Errorf("context %s: %q score %v, history implies %v", c.id, h, got.Score, w.Score)
		case got.Events != w.Events:
			return fmt.Errorf("context %s: %q has %d events, history implies %d", c.id, h, got.Events, w.Events)
		case !got.LastTouched.Equal(w.LastTouched):
			return fmt.Errorf("context %s: %q last touched %v, history implies %v", c.id, h, got.LastTouched, w.LastTouched)
		}
	}
	return nil
}

// IsInteresting reports whether handle has a strictly positive score.
// Elements never seen are not interesting.
func (c *Context) IsInteresting(handle string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interest[handle].Score > 0
}

// Get returns the interest recorded for handle.
func (c *Context) Get(handle string) (Interest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.interest[handle]
	return st, ok
}

// UserEventCount returns the number of history entries caused directly by
// the user.
func (c *Context) UserEventCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userEvents
}

// Len returns the number of history entries.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// History returns a copy of the interaction history, oldest first.
func (c *Context) History() []aggregate.Aggregate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]aggregate.Aggregate, len(c.history))
	for i, a := range c.history {
		out[i] = a.Clone()
	}
	return out
}

// Last returns the most recent history entry.
func (c *Context) Last() (aggregate.Aggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.history) == 0 {
		return aggregate.Aggregate{}, false
	}
	return c.history[len(c.history)-1].Clone(), true
}

// Interesting returns every element with positive interest, highest first.
func (c *Context) Interesting() []Interest {
	return c.collect(Interest.Interesting)
}

// Landmarks returns the landmark elements, highest first.
func (c *Context) Landmarks() []Interest {
	return c.collect(func(i Interest) bool { return i.Landmark })
}

func (c *Context) collect(keep func(Interest) bool) []Interest {
	c.mu.RLock()
	out := make([]Interest, 0, len(c.interest))
	for _, st := range c.interest {
		if keep(st) {
			out = append(out, st)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}
