// Package reconciler converges one remote entity at a time onto a desired
// spec. Each resource family plugs in its list, create, update and delete
// calls plus a matching rule; the engine decides which writes to issue and
// always returns the canonical record re-read after the last write.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/fortna/stackfleet/telemetry"
	"github.com/fortna/stackfleet/wal"
)

// Engine carries the instrumentation shared by every upsert
type Engine struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	journal *wal.WAL
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.Component("reconciler")
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for one span per upsert.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithJournal records every write in the run journal.
func WithJournal(j *wal.WAL) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// NewEngine creates an engine. Without options it logs, measures and
// traces nothing.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  telemetry.NewNopLogger(),
		metrics: telemetry.NewNopMetrics(),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Upsert converges the remote entity identified by spec:
//
//  1. list the family and match the spec
//  2. delete colliding entities when the family asks for it
//  3. create when nothing matches, otherwise replace or update
//  4. re-read and return the canonical record
//
// Any failure aborts the upsert; writes already issued are reported in the
// journal but never rolled back.
func Upsert[S, E any](ctx context.Context, e *Engine, f Family[S, E], spec S) (out Outcome[E], err error) {
	key := f.Key(spec)
	ctx, span := e.tracer.Start(ctx, "reconcile."+f.Name,
		trace.WithAttributes(
			attribute.String("family", f.Name),
			attribute.String("key", key),
		))
	e.logger.LogSpanStart(ctx, "reconcile."+f.Name, attribute.String("key", key))
	start := time.Now()

	u := &upsert[S, E]{engine: e, family: f, spec: spec, key: key, span: span}
	defer func() {
		e.metrics.RecordReconcile(ctx, f.Name, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.logger.LogSpanEnd(ctx, "reconcile."+f.Name, err)
		span.End()
		out.Writes = u.writes
	}()

	entity, action, err := u.run(ctx)
	if err != nil {
		return Outcome[E]{}, err
	}
	return Outcome[E]{Entity: entity, Action: action}, nil
}

// PlanUpsert computes what Upsert would do without writing anything.
func PlanUpsert[S, E any](ctx context.Context, e *Engine, f Family[S, E], spec S) (Plan, error) {
	key := f.Key(spec)
	plan := Plan{Family: f.Name, Key: key}

	entities, err := f.List(ctx, spec)
	if err != nil {
		return plan, fmt.Errorf("list %s: %w", f.Name, err)
	}
	match, found := f.Match(spec, entities)

	if f.DeleteConflicts != nil {
		for _, ent := range entities {
			if !f.DeleteConflicts(spec, ent) {
				continue
			}
			plan.Conflicts++
			if found && f.ID(ent) == f.ID(match) {
				found = false
			}
		}
	}

	switch {
	case !found:
		plan.Action = ActionCreate
	case f.OnMatch == ReplaceOnMatch:
		plan.Action = ActionReplace
		plan.MatchID = f.ID(match)
	default:
		plan.Action = ActionUpdate
		plan.MatchID = f.ID(match)
	}

	if e.journal != nil {
		if jerr := e.journal.Append(wal.EntryPlanned, key, plan); jerr != nil {
			e.logger.Warn().Err(jerr).Str("family", f.Name).Msg("journal append failed")
		}
	}
	return plan, nil
}

// upsert holds the state of one Upsert call.
type upsert[S, E any] struct {
	engine *Engine
	family Family[S, E]
	spec   S
	key    string
	span   trace.Span
	writes []Write
}

func (u *upsert[S, E]) run(ctx context.Context) (E, Action, error) {
	var zero E
	f := u.family

	entities, err := f.List(ctx, u.spec)
	if err != nil {
		return zero, "", fmt.Errorf("list %s: %w", f.Name, err)
	}
	match, found := f.Match(u.spec, entities)

	live := entities
	if f.DeleteConflicts != nil {
		live = make([]E, 0, len(entities))
		for _, ent := range entities {
			if !f.DeleteConflicts(u.spec, ent) {
				live = append(live, ent)
				continue
			}
			if err := u.delete(ctx, ent); err != nil {
				return zero, "", err
			}
			if found && f.ID(ent) == f.ID(match) {
				match, found = zero, false
			}
		}
	}

	var (
		written E
		action  Action
	)
	switch {
	case !found:
		action = ActionCreate
		written, err = u.create(ctx)
	case f.OnMatch == ReplaceOnMatch:
		action = ActionReplace
		if err = u.deleteMatches(ctx, live); err == nil {
			written, err = u.create(ctx)
		}
	default:
		action = ActionUpdate
		written, err = u.update(ctx, match)
	}
	if err != nil {
		return zero, "", err
	}

	canonical, err := u.reread(ctx, written)
	if err != nil {
		return zero, "", err
	}
	return canonical, action, nil
}

func (u *upsert[S, E]) create(ctx context.Context) (E, error) {
	var zero E
	f := u.family

	created, firstErr := f.Create(ctx, u.spec)
	if firstErr == nil {
		u.record(ctx, ActionCreate, f.ID(created), nil)
		return created, nil
	}
	u.record(ctx, ActionCreate, "", firstErr)

	if f.OnCreateConflict == nil {
		return zero, fmt.Errorf("create %s %q: %w", f.Name, u.key, firstErr)
	}

	deleted, err := f.OnCreateConflict(ctx, u.spec, firstErr)
	for _, id := range deleted {
		u.record(ctx, ActionDelete, id, nil)
	}
	if err != nil {
		u.record(ctx, ActionDelete, "", err)
		return zero, fmt.Errorf("%s %q: %w: first attempt: %w; clearing conflict: %w",
			f.Name, u.key, ErrConflictOnCreate, firstErr, err)
	}

	retried, retryErr := f.Create(ctx, u.spec)
	if retryErr != nil {
		u.record(ctx, ActionCreate, "", retryErr)
		return zero, fmt.Errorf("%s %q: %w: first attempt: %w; retry: %w",
			f.Name, u.key, ErrConflictOnCreate, firstErr, retryErr)
	}
	u.record(ctx, ActionCreate, f.ID(retried), nil)
	return retried, nil
}

func (u *upsert[S, E]) update(ctx context.Context, current E) (E, error) {
	f := u.family
	updated, err := f.Update(ctx, current, u.spec)
	if err != nil {
		u.record(ctx, ActionUpdate, f.ID(current), err)
		return updated, fmt.Errorf("update %s %q: %w", f.Name, u.key, err)
	}
	u.record(ctx, ActionUpdate, f.ID(current), nil)
	return updated, nil
}

func (u *upsert[S, E]) delete(ctx context.Context, entity E) error {
	f := u.family
	id := f.ID(entity)
	if err := f.Delete(ctx, u.spec, entity); err != nil {
		u.record(ctx, ActionDelete, id, err)
		return fmt.Errorf("delete %s %s: %w", f.Name, id, err)
	}
	u.record(ctx, ActionDelete, id, nil)
	return nil
}

// deleteMatches deletes every listed entity the family matches, so
// duplicates left by earlier runs do not survive a replace.
func (u *upsert[S, E]) deleteMatches(ctx context.Context, entities []E) error {
	f := u.family
	for _, ent := range entities {
		if _, ok := f.Match(u.spec, []E{ent}); !ok {
			continue
		}
		if err := u.delete(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

func (u *upsert[S, E]) reread(ctx context.Context, written E) (E, error) {
	f := u.family
	var (
		got E
		ok  bool
		err error
	)
	if f.Reread != nil {
		got, ok, err = f.Reread(ctx, u.spec, written)
	} else {
		var entities []E
		entities, err = f.List(ctx, u.spec)
		if err == nil {
			got, ok = f.Match(u.spec, entities)
		}
	}
	if err != nil {
		return got, fmt.Errorf("re-read %s %q: %w", f.Name, u.key, err)
	}
	if !ok {
		return got, fmt.Errorf("%s %q: %w", f.Name, u.key, ErrMissingAfterWrite)
	}
	return got, nil
}

// record reports one write to the log, metrics, span and journal.
func (u *upsert[S, E]) record(ctx context.Context, action Action, id string, err error) {
	e := u.engine
	w := Write{Family: u.family.Name, Key: u.key, Action: action, ID: id}

	if err != nil {
		w.Error = err.Error()
		e.logger.LogWriteError(ctx, w.Family, w.Key, string(action), err)
	} else {
		e.logger.LogWrite(ctx, w.Family, w.Key, string(action), id)
		e.metrics.RecordAction(ctx, w.Family, string(action))
		telemetry.RecordWriteEvent(u.span, w.Family, w.Key, string(action), id)
	}
	u.writes = append(u.writes, w)

	if e.journal == nil {
		return
	}
	var jerr error
	if err != nil {
		jerr = e.journal.AppendError(wal.EntryWriteFailed, w.Key, w, err)
	} else {
		jerr = e.journal.Append(wal.EntryWrite, w.Key, w)
	}
	if jerr != nil {
		e.logger.Warn().Err(jerr).Str("family", w.Family).Msg("journal append failed")
	}
}
