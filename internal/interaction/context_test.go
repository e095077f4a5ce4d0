package interaction

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazypower/attention/internal/aggregate"
	"github.com/lazypower/attention/internal/event"
	"github.com/lazypower/attention/internal/scaling"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func at(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func ev(kind event.Kind, handle string, interest float64, start, end int64) event.Event {
	return event.Event{
		Kind:                 kind,
		StructureKind:        "java",
		Handle:               handle,
		OriginID:             "editor",
		Delta:                event.DeltaReferred,
		InterestContribution: interest,
		Date:                 at(start),
		EndDate:              at(end),
	}
}

func TestNewIsEmpty(t *testing.T) {
	c := New("ctx", nil)
	require.Equal(t, "ctx", c.ID())
	require.NotNil(t, c.Scaling())
	require.Zero(t, c.Len())
	require.Zero(t, c.UserEventCount())
	require.Empty(t, c.Interesting())
	require.NoError(t, c.Verify())
}

func TestNullHandleIgnored(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	agg, ok := c.ParseEvent(ev(event.Selection, "", 1, 1000, 2000))
	require.False(t, ok)
	require.Zero(t, agg.NumCollapsedEvents)
	require.Zero(t, c.Len())
	require.False(t, c.IsInteresting(""))
}

func TestIsInteresting(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	require.False(t, c.IsInteresting("Foo.java"), "unknown elements are not interesting")

	c.ParseEvent(ev(event.Selection, "Foo.java", 1, 1000, 1000))
	require.True(t, c.IsInteresting("Foo.java"))

	c.ParseEvent(ev(event.Manipulation, "Foo.java", -10, 2000, 2000))
	require.False(t, c.IsInteresting("Foo.java"))

	st, ok := c.Get("Foo.java")
	require.True(t, ok, "negative interest is still tracked")
	require.Less(t, st.Score, 0.0)
	require.Equal(t, 2, st.Events)
}

func TestScoreDecaysThenAdds(t *testing.T) {
	tbl := scaling.Defaults()
	require.NoError(t, tbl.SetDecay(0.5))
	tbl.Set(event.Selection, 2)
	c := New("ctx", tbl)

	c.ParseEvent(ev(event.Selection, "a", 1, 1000, 1000))
	c.ParseEvent(ev(event.Selection, "a", 1, 2000, 2000))
	c.ParseEvent(ev(event.Selection, "a", 1, 3000, 3000))

	st, ok := c.Get("a")
	require.True(t, ok)
	require.InDelta(t, 3.5, st.Score, 1e-9)
}

func TestDecayOnlyTouchesTheEventHandle(t *testing.T) {
	tbl := scaling.Defaults()
	require.NoError(t, tbl.SetDecay(0.5))
	c := New("ctx", tbl)

	c.ParseEvent(ev(event.Command, "a", 4, 1000, 1000))
	c.ParseEvent(ev(event.Command, "b", 1, 2000, 2000))
	c.ParseEvent(ev(event.Command, "b", 1, 3000, 3000))

	a, _ := c.Get("a")
	require.InDelta(t, 4, a.Score, 1e-9)
	b, _ := c.Get("b")
	require.InDelta(t, 1.5, b.Score, 1e-9)
}

func TestScalingChangesApplyToLaterEvents(t *testing.T) {
	tbl := scaling.Defaults()
	require.NoError(t, tbl.SetDecay(0))
	c := New("ctx", tbl)

	c.ParseEvent(ev(event.Command, "a", 1, 1000, 1000))
	tbl.Set(event.Command, 10)
	require.Equal(t, 10.0, c.Scaling().Weight(event.Command))
	c.ParseEvent(ev(event.Command, "a", 1, 2000, 2000))

	st, _ := c.Get("a")
	require.InDelta(t, 11, st.Score, 1e-9, "earlier contributions are not rescored")
}

func TestLandmarks(t *testing.T) {
	tbl := scaling.Defaults()
	require.NoError(t, tbl.SetDecay(0))
	tbl.SetLandmark(2.5)
	c := New("ctx", tbl)

	for i := int64(0); i < 2; i++ {
		c.ParseEvent(ev(event.Selection, "a", 1, i*1000, i*1000))
	}
	require.Empty(t, c.Landmarks())

	c.ParseEvent(ev(event.Selection, "a", 1, 3000, 3000))
	c.ParseEvent(ev(event.Selection, "b", 5, 4000, 4000))
	marks := c.Landmarks()
	require.Len(t, marks, 2)
	require.Equal(t, "b", marks[0].Handle, "highest score first")
	require.Equal(t, "a", marks[1].Handle)

	c.ParseEvent(ev(event.Manipulation, "a", -5, 5000, 5000))
	marks = c.Landmarks()
	require.Len(t, marks, 1)
	require.Equal(t, "b", marks[0].Handle)
}

func TestInterestingOrdering(t *testing.T) {
	tbl := scaling.Defaults()
	require.NoError(t, tbl.SetDecay(0))
	c := New("ctx", tbl)

	c.ParseEvent(ev(event.Command, "c", 1, 1000, 1000))
	c.ParseEvent(ev(event.Command, "a", 1, 2000, 2000))
	c.ParseEvent(ev(event.Command, "b", 3, 3000, 3000))
	c.ParseEvent(ev(event.Command, "z", -1, 4000, 4000))

	var handles []string
	for _, st := range c.Interesting() {
		handles = append(handles, st.Handle)
	}
	require.Equal(t, []string{"b", "a", "c"}, handles)
}

func TestEditsFoldIntoOneEntry(t *testing.T) {
	c := New("ctx", scaling.Defaults())

	e1 := ev(event.Edit, "handle", 1, 1435121946000, 1435121947000)
	e2 := ev(event.Edit, "handle", 1, 1435121948000, 1435121949000)
	e2.Delta = event.DeltaModified
	e3 := ev(event.Edit, "handle", 1, 1435121950000, 1435121951000)
	e4 := ev(event.Edit, "handle", 1, 1435122050000, 1435122051000)

	for _, e := range []event.Event{e1, e2, e3} {
		_, ok := c.ParseEvent(e)
		require.True(t, ok)
	}
	agg, ok := c.ParseEvent(e4)
	require.True(t, ok)

	require.Equal(t, 1, c.Len())
	require.Equal(t, 4, agg.NumCollapsedEvents)
	require.True(t, agg.Date.Equal(e1.Date))
	require.True(t, agg.EndDate.Equal(e4.EndDate))
	require.Equal(t,
		"[2015-06-24 04:59:06.0 GMT/2015-06-24 04:59:11.0 GMT/modified, 2015-06-24 05:00:50.0 GMT/2015-06-24 05:00:51.0 GMT/referred]",
		agg.DurationsText())

	last, ok := c.Last()
	require.True(t, ok)
	require.Equal(t, agg.DurationsText(), last.DurationsText())
	require.Equal(t, 1, c.UserEventCount(), "folded events do not add entries")

	st, _ := c.Get("handle")
	require.Equal(t, 4, st.Events)
	require.Equal(t, st.Score, last.Score)
	require.NoError(t, c.Verify())
}

func TestSelectionAndEditFoldTogether(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	c.ParseEvent(ev(event.Selection, "a", 1, 1000, 1000))
	agg, _ := c.ParseEvent(ev(event.Edit, "a", 1, 2000, 2500))

	require.Equal(t, 1, c.Len())
	require.Equal(t, event.Edit, agg.Kind)
	require.Equal(t, 2, agg.NumCollapsedEvents)
}

func TestNoFoldAcrossHandlesOrKinds(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	c.ParseEvent(ev(event.Edit, "a", 1, 1000, 1000))
	c.ParseEvent(ev(event.Edit, "b", 1, 2000, 2000))
	c.ParseEvent(ev(event.Edit, "a", 1, 3000, 3000))
	require.Equal(t, 3, c.Len())

	c.ParseEvent(ev(event.Command, "a", 1, 4000, 4000))
	c.ParseEvent(ev(event.Command, "a", 1, 5000, 5000))
	require.Equal(t, 5, c.Len(), "commands never fold")

	c.ParseEvent(ev(event.Edit, "a", 1, 6000, 6000))
	require.Equal(t, 6, c.Len(), "an edit does not fold into a command")
}

func TestZeroMergeWindowOpensRanges(t *testing.T) {
	tbl := scaling.Defaults()
	require.NoError(t, tbl.SetMergeWindow(0))
	c := New("ctx", tbl)

	c.ParseEvent(ev(event.Edit, "a", 1, 1000, 1500))
	c.ParseEvent(ev(event.Edit, "a", 1, 1500, 1700))
	agg, _ := c.ParseEvent(ev(event.Edit, "a", 1, 2000, 2500))

	require.Equal(t, 1, c.Len())
	ds := agg.Durations()
	require.Len(t, ds, 2, "a touching event extends, a gap opens a new range")
	require.True(t, ds[0].End.Equal(at(1700)))
	require.True(t, ds[1].Begin.Equal(at(2000)))
}

func TestOutOfOrderEventOpensRange(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	c.ParseEvent(ev(event.Selection, "h", 1, 1435122000000, 1435122000000))
	agg, ok := c.ParseEvent(ev(event.Selection, "h", 1, 1435121990000, 1435121995000))
	require.True(t, ok)

	require.Equal(t, 1, c.Len())
	require.Equal(t, 2, agg.NumCollapsedEvents)
	require.True(t, agg.Date.Equal(at(1435122000000)))
	require.True(t, agg.EndDate.Equal(at(1435122000000)), "end date never moves backwards")
	require.Equal(t,
		"[2015-06-24 05:00:00.0 GMT/2015-06-24 05:00:00.0 GMT/referred, 2015-06-24 04:59:50.0 GMT/2015-06-24 04:59:55.0 GMT/referred]",
		agg.DurationsText())
	require.NoError(t, agg.Validate())

	st, _ := c.Get("h")
	require.True(t, st.LastTouched.Equal(agg.EndDate))
	require.NoError(t, c.Verify())
}

func TestFoldAfterRestoreWithoutDurations(t *testing.T) {
	first := aggregate.FromEvent(ev(event.Edit, "h", 1, 1000, 1000), 0)
	first.Score = 0.7
	for _, text := range []string{"", "[]"} {
		restored, err := first.WithDurationsText(text)
		require.NoError(t, err)

		c := New("ctx", scaling.Defaults())
		require.NoError(t, c.Restore([]aggregate.Aggregate{restored}))

		var agg aggregate.Aggregate
		require.NotPanics(t, func() {
			agg, _ = c.ParseEvent(ev(event.Edit, "h", 1, 2000, 2500))
		}, "durations %q", text)

		require.Equal(t, 1, c.Len())
		require.Equal(t, 2, agg.NumCollapsedEvents)
		ds := agg.Durations()
		require.Len(t, ds, 1)
		require.True(t, ds[0].Begin.Equal(at(2000)))
		require.True(t, ds[0].End.Equal(at(2500)))
		require.NoError(t, c.Verify())
	}
}

func TestRecordFailureLeavesState(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	c.ParseEvent(ev(event.Selection, "a", 1, 1000, 1000))
	before := c.History()
	st, _ := c.Get("a")

	boom := errors.New("boom")
	fail := func(int, aggregate.Aggregate) error { return boom }

	_, ok, err := c.Record(ev(event.Edit, "a", 1, 2000, 2000), fail)
	require.True(t, ok)
	require.ErrorIs(t, err, boom)
	_, _, err = c.Record(ev(event.Command, "b", 1, 3000, 3000), fail)
	require.ErrorIs(t, err, boom)

	require.Equal(t, len(before), c.Len())
	require.Equal(t, 1, c.History()[0].NumCollapsedEvents)
	require.Equal(t, 1, c.UserEventCount())
	after, _ := c.Get("a")
	require.Equal(t, st, after)
	_, tracked := c.Get("b")
	require.False(t, tracked)

	var seqs []int
	_, _, err = c.Record(ev(event.Edit, "a", 1, 2000, 2000), func(seq int, a aggregate.Aggregate) error {
		seqs = append(seqs, seq)
		return nil
	})
	require.NoError(t, err)
	_, _, err = c.Record(ev(event.Command, "b", 1, 3000, 3000), func(seq int, a aggregate.Aggregate) error {
		seqs = append(seqs, seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, seqs, "a fold rewrites the last index, a new entry takes the next")
}

func TestUserEventCount(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	c.ParseEvent(ev(event.Selection, "a", 1, 1000, 1000))
	c.ParseEvent(ev(event.Propagation, "b", 1, 2000, 2000))
	c.ParseEvent(ev(event.Edit, "c", 1, 3000, 3000))
	c.ParseEvent(ev(event.Edit, "c", 1, 3500, 3500))
	c.ParseEvent(ev(event.Prediction, "d", 1, 4000, 4000))
	agg, _ := c.ParseEvent(ev(event.Command, "e", 1, 5000, 5000))

	require.Equal(t, 2, agg.EventCountOnCreation)
	require.Equal(t, 3, c.UserEventCount())
	require.Equal(t, 5, c.Len())
}

func TestHistoryIsACopy(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	ret, _ := c.ParseEvent(ev(event.Edit, "a", 1, 1000, 1000))
	ret.Meta.Durations[0].Modified = true

	h := c.History()
	require.False(t, h[0].Durations()[0].Modified)

	h[0].Meta.Durations[0].Modified = true
	h[0].Handle = "mutated"
	again := c.History()
	require.Equal(t, "a", again[0].Handle)
	require.False(t, again[0].Durations()[0].Modified)
}

func TestReset(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	c.ParseEvent(ev(event.Selection, "a", 1, 1000, 1000))
	c.ParseEvent(ev(event.Command, "b", 1, 2000, 2000))

	c.Reset()
	require.Zero(t, c.Len())
	require.Zero(t, c.UserEventCount())
	require.False(t, c.IsInteresting("a"))
	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Last()
	require.False(t, ok)

	c.ParseEvent(ev(event.Selection, "a", 1, 3000, 3000))
	require.Equal(t, 1, c.Len())
	require.NoError(t, c.Verify())
}

func mixedStream() []event.Event {
	return []event.Event{
		ev(event.Selection, "a", 1, 1000, 1000),
		ev(event.Edit, "a", 1, 2000, 2500),
		ev(event.Propagation, "b", 1, 3000, 3000),
		ev(event.Edit, "c", 1, 4000, 4000),
		ev(event.Edit, "c", 1, 200000, 200500),
		ev(event.Manipulation, "b", -3, 201000, 201000),
		ev(event.Selection, "a", 1, 202000, 202000),
	}
}

func TestRestoreRebuildsInterest(t *testing.T) {
	src := New("src", scaling.Defaults())
	for _, e := range mixedStream() {
		src.ParseEvent(e)
	}
	require.NoError(t, src.Verify())

	dst := New("dst", scaling.Defaults())
	require.NoError(t, dst.Restore(src.History()))
	require.NoError(t, dst.Verify())

	require.Equal(t, src.Len(), dst.Len())
	require.Equal(t, src.UserEventCount(), dst.UserEventCount())
	if diff := cmp.Diff(src.Interesting(), dst.Interesting()); diff != "" {
		t.Errorf("restored interest mismatch (-src +dst):\n%s", diff)
	}
	for _, h := range []string{"a", "b", "c"} {
		want, _ := src.Get(h)
		got, ok := dst.Get(h)
		require.True(t, ok, h)
		require.Equal(t, want.Score, got.Score, h)
		require.Equal(t, want.Events, got.Events, h)
	}

	// Ingestion continues where the source left off.
	next := ev(event.Selection, "a", 1, 203000, 203000)
	a1, _ := src.ParseEvent(next)
	a2, _ := dst.ParseEvent(next)
	require.Equal(t, a1.Score, a2.Score)
	require.Equal(t, a1.NumCollapsedEvents, a2.NumCollapsedEvents)
}

func TestRestoreRejectsInvalidHistory(t *testing.T) {
	src := New("src", scaling.Defaults())
	for _, e := range mixedStream() {
		src.ParseEvent(e)
	}
	h := src.History()
	h[2].NumCollapsedEvents = 0

	dst := New("dst", scaling.Defaults())
	dst.ParseEvent(ev(event.Command, "keep", 1, 1000, 1000))
	require.Error(t, dst.Restore(h))
	require.Equal(t, 1, dst.Len(), "failed restore leaves state alone")
}

func TestVerifyDetectsDrift(t *testing.T) {
	c := New("ctx", scaling.Defaults())
	for _, e := range mixedStream() {
		c.ParseEvent(e)
	}
	require.NoError(t, c.Verify())

	orig := c.interest["a"]
	st := orig
	st.Score += 1
	c.interest["a"] = st
	require.Error(t, c.Verify())

	c.interest["a"] = orig
	require.NoError(t, c.Verify())

	c.interest["ghost"] = Interest{Handle: "ghost"}
	require.Error(t, c.Verify())
	delete(c.interest, "ghost")

	c.userEvents++
	require.Error(t, c.Verify())
}

func TestConcurrentIngest(t *testing.T) {
	c := New("ctx", scaling.Defaults())

	const writers, perWriter = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handle := fmt.Sprintf("h%d", w)
			for i := 0; i < perWriter; i++ {
				ms := int64(i * 1000)
				c.ParseEvent(ev(event.Selection, handle, 1, ms, ms))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = c.Interesting()
				_ = c.History()
				_ = c.IsInteresting("h0")
			}
		}()
	}
	wg.Wait()

	require.NoError(t, c.Verify())
	total := 0
	for _, a := range c.History() {
		total += a.NumCollapsedEvents
	}
	require.Equal(t, writers*perWriter, total)
	for w := 0; w < writers; w++ {
		st, ok := c.Get(fmt.Sprintf("h%d", w))
		require.True(t, ok)
		require.Equal(t, perWriter, st.Events)
	}
}
