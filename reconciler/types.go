package reconciler

import (
	"context"
	"errors"
)

var (
	// ErrConflictOnCreate marks a create that failed, was followed by a
	// delete-by-name and a single retry, and failed again.
	ErrConflictOnCreate = errors.New("conflict on create")

	// ErrMissingAfterWrite is returned when the canonical re-read after a
	// successful write cannot find the entity.
	ErrMissingAfterWrite = errors.New("entity missing after write")
)

// Action names a remote write performed (or planned) by the engine
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace" // delete of the match followed by a create
)

// MatchPolicy decides what happens to an entity matching the spec
type MatchPolicy int

const (
	// UpdateOnMatch updates the match in place, preserving its identity.
	UpdateOnMatch MatchPolicy = iota
	// ReplaceOnMatch deletes every matching entity and creates a fresh one.
	ReplaceOnMatch
)

func (p MatchPolicy) String() string {
	if p == ReplaceOnMatch {
		return "replace"
	}
	return "update"
}

// Matcher finds the entity correlated with a spec among listed entities
type Matcher[S, E any] func(spec S, entities []E) (E, bool)

// ConflictStrategy clears whatever blocked a create so it can be retried
// once. It receives the error of the failed create and returns the ids it
// deleted, which may be none.
type ConflictStrategy[S any] func(ctx context.Context, spec S, createErr error) (deleted []string, err error)

// ConflictFilter reports whether an existing entity collides with the spec
// and must be deleted before any write.
type ConflictFilter[S, E any] func(spec S, entity E) bool

// Family binds the remote operations and strategies of one resource family.
type Family[S, E any] struct {
	Name string

	// Key returns the correlation key of a spec.
	Key func(S) string
	// ID returns the remote identifier of an entity.
	ID func(E) string

	// List returns the entities in the spec's scope.
	List   func(ctx context.Context, spec S) ([]E, error)
	Create func(ctx context.Context, spec S) (E, error)
	// Update receives the matched entity and must send the complete set
	// of mutable attributes.
	Update func(ctx context.Context, current E, spec S) (E, error)
	// Delete receives the spec for its scope (e.g. region).
	Delete func(ctx context.Context, spec S, entity E) error

	Match   Matcher[S, E]
	OnMatch MatchPolicy

	// OnCreateConflict, when set, enables a single delete and retry after
	// a failed create.
	OnCreateConflict ConflictStrategy[S]
	// DeleteConflicts, when set, deletes every colliding entity first.
	DeleteConflicts ConflictFilter[S, E]

	// Reread returns the canonical record after a write. When nil the
	// engine lists again and re-matches.
	Reread func(ctx context.Context, spec S, written E) (E, bool, error)
}

// Write is one remote write performed during an upsert.
type Write struct {
	Family string `json:"family"`
	Key    string `json:"key"`
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Outcome is the result of an upsert.
type Outcome[E any] struct {
	Entity E
	Action Action
	Writes []Write
}

// Plan is what an upsert would do, computed without writing.
type Plan struct {
	Family    string `json:"family"`
	Key       string `json:"key"`
	Action    Action `json:"action"`
	MatchID   string `json:"match_id,omitempty"`
	Conflicts int    `json:"conflicts,omitempty"`
}
