// Package engine owns the set of live interaction contexts and keeps them in
// step with the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/attention/internal/aggregate"
	"github.com/lazypower/attention/internal/event"
	"github.com/lazypower/attention/internal/interaction"
	"github.com/lazypower/attention/internal/scaling"
	"github.com/lazypower/attention/internal/store"
)

// ErrUnknownContext is returned for a context id the engine does not hold.
var ErrUnknownContext = errors.New("unknown context")

// loadParallelism bounds concurrent context loads at startup.
const loadParallelism = 4

// slot pairs a context with the lock that keeps its in-memory history and
// its persisted rows in the same order.
type slot struct {
	mu  sync.Mutex
	ctx *interaction.Context
}

// Engine is a registry of interaction contexts backed by an optional store.
type Engine struct {
	DB      *store.DB
	Scaling *scaling.Table
	log     *zap.Logger

	mu       sync.RWMutex
	contexts map[string]*slot

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an Engine. db may be nil for a purely in-memory engine.
func New(db *store.DB, tbl *scaling.Table, log *zap.Logger) *Engine {
	if tbl == nil {
		tbl = scaling.Defaults()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		DB:       db,
		Scaling:  tbl,
		log:      log,
		contexts: make(map[string]*slot),
		stopCh:   make(chan struct{}),
	}
}

// Context returns the live context with the given id.
func (e *Engine) Context(id string) (*interaction.Context, error) {
	e.mu.RLock()
	s, ok := e.contexts[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("context %q: %w", id, ErrUnknownContext)
	}
	return s.ctx, nil
}

// Contexts returns the ids of all live contexts, sorted.
func (e *Engine) Contexts() []string {
	e.mu.RLock()
	ids := make([]string, 0, len(e.contexts))
	for id := range e.contexts {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (e *Engine) slot(id string) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.contexts[id]
	if !ok {
		s = &slot{ctx: interaction.New(id, e.Scaling)}
		e.contexts[id] = s
	}
	return s
}

// Ingest feeds one event to a context, creating the context on first use,
// and persists the entry the event produced or updated. When the entry
// cannot be saved the context is left as it was.
func (e *Engine) Ingest(ctx context.Context, id string, ev event.Event) (aggregate.Aggregate, bool, error) {
	if err := ctx.Err(); err != nil {
		return aggregate.Aggregate{}, false, err
	}
	if id == "" {
		return aggregate.Aggregate{}, false, errors.New("ingest: empty context id")
	}

	s := e.slot(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	var persist func(int, aggregate.Aggregate) error
	if e.DB != nil {
		persist = func(seq int, a aggregate.Aggregate) error {
			return e.DB.SaveEntry(id, seq, a)
		}
	}
	agg, ok, err := s.ctx.Record(ev, persist)
	if err != nil {
		return agg, true, fmt.Errorf("persist %s: %w", id, err)
	}
	if !ok {
		e.log.Debug("event without handle dropped", zap.String("context", id), zap.Stringer("kind", ev.Kind))
	}
	return agg, ok, nil
}

// Replay ingests events in order. It stops at the first persistence error or
// when ctx is cancelled.
func (e *Engine) Replay(ctx context.Context, id string, events []event.Event) (parsed, skipped int, err error) {
	for _, ev := range events {
		_, ok, err := e.Ingest(ctx, id, ev)
		if err != nil {
			return parsed, skipped, err
		}
		if ok {
			parsed++
		} else {
			skipped++
		}
	}
	e.log.Info("replay complete",
		zap.String("context", id),
		zap.Int("parsed", parsed),
		zap.Int("skipped", skipped),
	)
	return parsed, skipped, nil
}

// Reset clears a context's history in memory and in the store.
func (e *Engine) Reset(id string) error {
	e.mu.RLock()
	s, ok := e.contexts[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("reset %q: %w", id, ErrUnknownContext)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx.Reset()
	if e.DB != nil {
		n, err := e.DB.DeleteHistory(id)
		if err != nil {
			return fmt.Errorf("reset %s: %w", id, err)
		}
		e.log.Info("context reset", zap.String("context", id), zap.Int64("entries", n))
	}
	return nil
}

// LoadAll restores every persisted context from the store and verifies the
// interest rebuilt from each history. It returns the number of contexts
// loaded.
func (e *Engine) LoadAll(ctx context.Context) (int, error) {
	if e.DB == nil {
		return 0, nil
	}
	infos, err := e.DB.ListContexts()
	if err != nil {
		return 0, fmt.Errorf("load contexts: %w", err)
	}

	loaded := make([]*interaction.Context, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for i, info := range infos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := e.load(info.ID)
			if err != nil {
				return err
			}
			loaded[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	for _, c := range loaded {
		e.contexts[c.ID()] = &slot{ctx: c}
	}
	e.mu.Unlock()

	e.log.Info("contexts loaded", zap.Int("count", len(loaded)))
	return len(loaded), nil
}

func (e *Engine) load(id string) (*interaction.Context, error) {
	history, err := e.DB.LoadHistory(id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	c := interaction.New(id, e.Scaling)
	if err := c.Restore(history); err != nil {
		return nil, err
	}
	if err := c.Verify(); err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	if q, err := e.DB.Quarantined(id); err != nil {
		e.log.Warn("list quarantined entries", zap.String("context", id), zap.Error(err))
	} else if len(q) > 0 {
		e.log.Warn("context has quarantined entries", zap.String("context", id), zap.Int("count", len(q)))
	}
	e.log.Debug("context restored", zap.String("context", id), zap.Int("entries", len(history)))
	return c, nil
}

// Audit verifies every live context and returns the first inconsistency.
func (e *Engine) Audit() error {
	for _, id := range e.Contexts() {
		c, err := e.Context(id)
		if err != nil {
			continue
		}
		if err := c.Verify(); err != nil {
			return err
		}
	}
	return nil
}

// StartAuditTimer audits all contexts on the given interval until Stop.
func (e *Engine) StartAuditTimer(interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := e.Audit(); err != nil {
					e.log.Error("audit failed", zap.Error(err))
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
