// Package lifecycle tracks whether a listing is still present at the source.
//
// Valid status graph:
//
//	ACTIVE ──miss──► MISSING_PENDING ──miss (threshold reached)──► REMOVED
//	  ▲                   │                                          │
//	  └───────seen────────┘                                         seen
//	  ▲                                                              │
//	  └───────────────────────── REAPPEARED ◄────────────────────────┘
//
// REAPPEARED is transient: it is reported for the run a removed listing comes
// back and immediately resolves to ACTIVE.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/richroberts-prog/air-demand/internal/model"
)

// ErrIllegalTransition is returned when a stored status cannot move along
// the graph above, typically because the row holds an unknown status.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// State is the persisted lifecycle position of one role.
type State struct {
	Status model.LifecycleStatus
	Misses int // consecutive runs absent
}

// Transition is the result of applying one run's observation to a State.
type Transition struct {
	From  State
	To    State
	Path  []model.LifecycleStatus // every status passed through, ending at To.Status
	Event model.ChangeType        // REAPPEARED or DISAPPEARED, empty otherwise
}

// Changed reports whether the stored status moves.
func (t Transition) Changed() bool {
	return t.From.Status != t.To.Status
}

// Reported is the status surfaced to consumers for this run, which keeps
// REAPPEARED visible even though it is never stored.
func (t Transition) Reported() model.LifecycleStatus {
	if t.Event == model.ChangeReappeared {
		return model.StatusReappeared
	}
	return t.To.Status
}

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[model.LifecycleStatus][]model.LifecycleStatus{
	model.StatusActive:         {model.StatusActive, model.StatusMissingPending, model.StatusRemoved},
	model.StatusMissingPending: {model.StatusMissingPending, model.StatusRemoved, model.StatusActive},
	model.StatusRemoved:        {model.StatusRemoved, model.StatusReappeared},
	model.StatusReappeared:     {model.StatusActive},
}

// ParseStatus converts a raw string to a LifecycleStatus, returning an error
// for unknown values.
func ParseStatus(s string) (model.LifecycleStatus, error) {
	st := model.LifecycleStatus(s)
	switch st {
	case model.StatusActive, model.StatusMissingPending, model.StatusRemoved, model.StatusReappeared:
		return st, nil
	}
	return "", fmt.Errorf("unknown lifecycle status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to model.LifecycleStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observe applies a run in which the role was present in the batch.
func Observe(s State) (Transition, error) {
	t := Transition{From: s, To: State{Status: model.StatusActive}}
	if s.Status == model.StatusRemoved {
		t.Path = []model.LifecycleStatus{model.StatusReappeared, model.StatusActive}
		t.Event = model.ChangeReappeared
	} else {
		t.Path = []model.LifecycleStatus{model.StatusActive}
	}
	return t, t.validate()
}

// Miss applies a run in which the role was absent. The role is REMOVED once
// it has been absent for threshold consecutive runs; DISAPPEARED is emitted
// only at that crossing.
func Miss(s State, threshold int) (Transition, error) {
	if threshold < 1 {
		threshold = 1
	}
	t := Transition{From: s}
	if s.Status == model.StatusRemoved {
		t.To = s
	} else {
		misses := s.Misses + 1
		if s.Status == model.StatusActive {
			misses = 1
		}
		if misses >= threshold {
			t.To = State{Status: model.StatusRemoved, Misses: misses}
			t.Event = model.ChangeDisappeared
		} else {
			t.To = State{Status: model.StatusMissingPending, Misses: misses}
		}
	}
	t.Path = []model.LifecycleStatus{t.To.Status}
	return t, t.validate()
}

// validate walks Path from the starting status and rejects any step the
// graph does not allow.
func (t Transition) validate() error {
	from, err := ParseStatus(string(t.From.Status))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalTransition, err)
	}
	for _, step := range t.Path {
		if !IsTransitionAllowed(from, step) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, step)
		}
		from = step
	}
	return nil
}
