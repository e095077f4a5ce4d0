// Package event defines the interaction event observed against a tracked element.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Delta tags recognized on events.
const (
	DeltaModified = "modified"
	DeltaReferred = "referred"

	// DeltaUpdated is the older spelling of DeltaModified still found in persisted logs.
	DeltaUpdated = "updated"
)

// ErrInvalidRange is returned when an event ends before it starts.
var ErrInvalidRange = errors.New("end date before start date")

// Kind classifies what kind of interaction produced an event.
type Kind int

const (
	Unknown Kind = iota
	Selection
	Edit
	Command
	Propagation
	Manipulation
	Preference
	Prediction
	Attention
	User
)

var kindNames = [...]string{
	Unknown:      "unknown",
	Selection:    "selection",
	Edit:         "edit",
	Command:      "command",
	Propagation:  "propagation",
	Manipulation: "manipulation",
	Preference:   "preference",
	Prediction:   "prediction",
	Attention:    "attention",
	User:         "user",
}

// Kinds lists every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[Unknown]
	}
	return kindNames[k]
}

// ParseKind maps a kind name (case-insensitive) to a Kind.
// Unrecognized names map to Unknown.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return Unknown
}

// IsUserEvent reports whether the kind is directly attributable to the user,
// as opposed to propagated or predicted interest.
func (k Kind) IsUserEvent() bool {
	switch k {
	case Selection, Edit, Command, Preference, User:
		return true
	}
	return false
}

// IsCollapsible reports whether consecutive events of this kind against the
// same element may be folded into one aggregate.
func (k Kind) IsCollapsible() bool {
	return k == Selection || k == Edit
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("kind: %w", err)
	}
	*k = ParseKind(s)
	return nil
}

// Event is one observed interaction. Events are values; nothing mutates
// them after construction.
type Event struct {
	Kind                 Kind      `json:"kind"`
	StructureKind        string    `json:"structure_kind"`
	Handle               string    `json:"handle"`
	OriginID             string    `json:"origin_id"`
	NavigatedRelation    string    `json:"navigation,omitempty"`
	Delta                string    `json:"delta"`
	InterestContribution float64   `json:"interest"`
	Date                 time.Time `json:"date"`
	EndDate              time.Time `json:"end_date"`
}

// New builds an event and checks its time range. A zero end date means the
// event is instantaneous.
func New(kind Kind, structureKind, handle, originID, navigation, delta string, interest float64, date, endDate time.Time) (Event, error) {
	if endDate.IsZero() {
		endDate = date
	}
	e := Event{
		Kind:                 kind,
		StructureKind:        structureKind,
		Handle:               handle,
		OriginID:             originID,
		NavigatedRelation:    navigation,
		Delta:                delta,
		InterestContribution: interest,
		Date:                 date,
		EndDate:              endDate,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks the EndDate >= Date invariant.
func (e Event) Validate() error {
	if e.EndDate.Before(e.Date) {
		return fmt.Errorf("event %s on %q: %w", e.Kind, e.Handle, ErrInvalidRange)
	}
	return nil
}

// IsModifying reports whether the delta tag marks a modification.
func (e Event) IsModifying() bool {
	return IsModifyingDelta(e.Delta)
}

// IsModifyingDelta reports whether a delta tag marks a modification.
func IsModifyingDelta(delta string) bool {
	return delta == DeltaModified || delta == DeltaUpdated
}

// Resolvable reports whether the event names an element at all. Events
// without a handle are dropped by every consumer.
func (e Event) Resolvable() bool {
	return e.Handle != ""
}
