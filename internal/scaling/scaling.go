// Package scaling holds the weights that turn raw event contributions into
// interest, plus the decay, landmark and merge-window settings.
//
// A Table is read-mostly: scoring only reads it, and the Set* methods are
// administrative. One Table may be shared by many interaction contexts.
// Changes apply to later scoring only; recorded history is never rescored.
package scaling

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/event"
)

// Default values.
const (
	DefaultDecay       = 0.017
	DefaultLandmark    = 30.0
	DefaultMergeWindow = 60 * time.Second
)

var defaultWeights = map[event.Kind]float64{
	event.Selection:    1,
	event.Edit:         0.7,
	event.Command:      1,
	event.Preference:   1,
	event.Manipulation: 1,
	event.User:         1,
	event.Propagation:  0.4,
	event.Prediction:   0.2,
	event.Attention:    0.5,
	event.Unknown:      0,
}

// Table maps event kinds to weights.
type Table struct {
	mu          sync.RWMutex
	weights     map[event.Kind]float64
	decay       float64
	landmark    float64
	mergeWindow time.Duration
}

// Defaults returns a table populated with the default weights.
func Defaults() *Table {
	t := &Table{
		weights:     make(map[event.Kind]float64, len(defaultWeights)),
		decay:       DefaultDecay,
		landmark:    DefaultLandmark,
		mergeWindow: DefaultMergeWindow,
	}
	for k, w := range defaultWeights {
		t.weights[k] = w
	}
	return t
}

// FromConfig builds a table from the defaults overlaid with cfg. Zero-valued
// scalars in cfg keep their defaults; weights name kinds by their string form.
func FromConfig(cfg config.ScalingConfig) (*Table, error) {
	t := Defaults()
	for name, w := range cfg.Weights {
		k := event.ParseKind(name)
		if k == event.Unknown && name != event.Unknown.String() {
			return nil, fmt.Errorf("scaling: unknown event kind %q", name)
		}
		t.weights[k] = w
	}
	if cfg.Decay != nil {
		if err := t.SetDecay(*cfg.Decay); err != nil {
			return nil, err
		}
	}
	if cfg.Landmark != nil {
		t.landmark = *cfg.Landmark
	}
	if cfg.MergeWindow != "" {
		d, err := time.ParseDuration(cfg.MergeWindow)
		if err != nil {
			return nil, fmt.Errorf("scaling: merge window: %w", err)
		}
		if err := t.SetMergeWindow(d); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Weight returns the weight for kind. Kinds without an entry weigh zero.
func (t *Table) Weight(k event.Kind) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.weights[k]
}

// Decay returns the fraction of accumulated interest lost per processed event.
func (t *Table) Decay() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.decay
}

// Landmark returns the score at or above which an element is a landmark.
func (t *Table) Landmark() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.landmark
}

// MergeWindow returns the largest gap between consecutive collapsible events
// that still extends the current duration rather than starting a new one.
func (t *Table) MergeWindow() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mergeWindow
}

// Set replaces the weight for kind.
func (t *Table) Set(k event.Kind, w float64) {
	t.mu.Lock()
	t.weights[k] = w
	t.mu.Unlock()
}

// SetDecay sets the per-event decay. It must lie in [0, 1].
func (t *Table) SetDecay(d float64) error {
	if d < 0 || d > 1 {
		return fmt.Errorf("scaling: decay %v outside [0, 1]", d)
	}
	t.mu.Lock()
	t.decay = d
	t.mu.Unlock()
	return nil
}

// SetLandmark sets the landmark threshold.
func (t *Table) SetLandmark(v float64) {
	t.mu.Lock()
	t.landmark = v
	t.mu.Unlock()
}

// SetMergeWindow sets the merge window. Negative windows are rejected.
func (t *Table) SetMergeWindow(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("scaling: negative merge window %v", d)
	}
	t.mu.Lock()
	t.mergeWindow = d
	t.mu.Unlock()
	return nil
}

// Snapshot is a point-in-time copy of a table, safe to hand to encoders.
type Snapshot struct {
	Weights     map[string]float64 `json:"weights" yaml:"weights"`
	Decay       float64            `json:"decay" yaml:"decay"`
	Landmark    float64            `json:"landmark" yaml:"landmark"`
	MergeWindow string             `json:"merge_window" yaml:"merge_window"`
}

// Snapshot copies the current settings.
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{
		Weights:     make(map[string]float64, len(t.weights)),
		Decay:       t.decay,
		Landmark:    t.landmark,
		MergeWindow: t.mergeWindow.String(),
	}
	for k, w := range t.weights {
		s.Weights[k.String()] = w
	}
	return s
}

// KindNames returns the weighted kind names in sorted order.
func (s Snapshot) KindNames() []string {
	names := make([]string, 0, len(s.Weights))
	for n := range s.Weights {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
