package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/reqctx"
)

// ErrMissingBefore is returned for an UPDATE without a pre-mutation state
var ErrMissingBefore = errors.New("update requires the pre-mutation state")

// Stage names the step of recording that failed
type Stage string

const (
	StageSnapshot Stage = "snapshot"
	StageResolve  Stage = "resolve"
	StageWrite    Stage = "write"
)

// RecordError describes a failed recording of one lifecycle event
type RecordError struct {
	Stage     Stage
	ItemType  ItemType
	Event     Event
	Partition Partition
	Err       error
}

func (e *RecordError) Error() string {
	if e.Stage == StageWrite {
		return fmt.Sprintf("audit %s %s (%s) %s: %v", e.Event, e.ItemType, e.Partition, e.Stage, e.Err)
	}
	return fmt.Sprintf("audit %s %s %s: %v", e.Event, e.ItemType, e.Stage, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Recorder turns committed lifecycle events into audit entries and writes
// them to the partition chosen by its router.
type Recorder struct {
	router  *Router
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock overrides the clock used for CreatedAt
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger used for debug output
func WithLogger(logger *observability.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics enables Prometheus counters
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Recorder) { r.metrics = metrics }
}

// WithTracer overrides the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Recorder) { r.tracer = tracer }
}

// NewRecorder creates a recorder writing through router
func NewRecorder(router *Router, opts ...Option) *Recorder {
	r := &Recorder{
		router: router,
		logger: observability.NopLogger(),
		tracer: observability.Tracer(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record builds and writes the entry for m. It returns (nil, nil) when the
// entity is not tracked or an UPDATE changed nothing.
func (r *Recorder) Record(ctx context.Context, m Mutation) (*LogEntry, error) {
	ctx, span := r.tracer.Start(ctx, "audit.record",
		trace.WithAttributes(attribute.String("audit.event", string(m.Event))))
	defer span.End()

	entry, err := r.Build(ctx, m)
	if err != nil || entry == nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("audit.item_type", string(entry.ItemType)))

	if err := r.Write(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return entry, nil
}

// Build classifies the mutated entity, computes its changes and copies the
// request metadata bound to ctx. It does no I/O. A nil entry means there is
// nothing to record.
func (r *Recorder) Build(ctx context.Context, m Mutation) (*LogEntry, error) {
	subject := m.Entity
	if isNil(subject) {
		subject = m.Before
	}

	itemType, ok := Classify(subject)
	if !ok {
		r.metrics.RecordAuditSkip("untracked")
		return nil, nil
	}

	fail := func(err error) error {
		r.metrics.RecordAuditFailure(string(StageSnapshot))
		return &RecordError{Stage: StageSnapshot, ItemType: itemType, Event: m.Event, Err: err}
	}

	var (
		changes *ObjectChanges
		itemID  string
		err     error
	)
	switch m.Event {
	case EventCreate, EventRestore:
		var after map[string]any
		if after, err = Snapshot(subject); err != nil {
			return nil, fail(err)
		}
		changes = &ObjectChanges{After: after}
		itemID = idOf(subject)

	case EventUpdate:
		if isNil(m.Before) || isNil(m.Entity) {
			return nil, fail(ErrMissingBefore)
		}
		if changes, err = DiffUpdate(m.Before, m.Entity, m.Touched); err != nil {
			return nil, fail(err)
		}
		if changes == nil {
			r.metrics.RecordAuditSkip("empty_diff")
			return nil, nil
		}
		itemID = idOf(m.Entity)

	case EventDelete, EventSoftDelete:
		removed := m.Before
		if isNil(removed) {
			removed = m.Entity
		}
		var before map[string]any
		if before, err = Snapshot(removed); err != nil {
			return nil, fail(err)
		}
		changes = &ObjectChanges{Before: before}
		if itemID = idOf(m.Entity); itemID == "" {
			itemID = idOf(removed)
		}

	default:
		return nil, fail(fmt.Errorf("unknown event %q", m.Event))
	}

	rc := reqctx.FromContext(ctx)
	return &LogEntry{
		ItemID:        optional(itemID),
		ItemType:      itemType,
		Event:         m.Event,
		ActorID:       optional(rc.ActorID),
		ActorType:     rc.ActorType,
		ObjectChanges: changes,
		IP:            optional(rc.IP),
		UserAgent:     optional(rc.UserAgent),
		RequestID:     optional(rc.RequestID),
		Source:        optional(rc.Source),
	}, nil
}

// Write resolves the partition for entry and appends it. CreatedAt is set
// immediately before the insert.
func (r *Recorder) Write(ctx context.Context, entry *LogEntry) error {
	store, p, err := r.router.Resolve(ctx, entry.ItemType)
	if err != nil {
		r.metrics.RecordAuditFailure(string(StageResolve))
		return &RecordError{Stage: StageResolve, ItemType: entry.ItemType, Event: entry.Event, Partition: p, Err: err}
	}

	entry.CreatedAt = r.now().UTC()
	start := time.Now()
	if err := store.Append(ctx, entry); err != nil {
		r.metrics.RecordAuditFailure(string(StageWrite))
		return &RecordError{Stage: StageWrite, ItemType: entry.ItemType, Event: entry.Event, Partition: p, Err: err}
	}
	r.metrics.RecordAuditEntry(string(entry.ItemType), string(entry.Event), p.Kind(), time.Since(start))

	r.logger.WithFields(map[string]interface{}{
		"audit_id":  entry.ID,
		"item_type": entry.ItemType,
		"event":     entry.Event,
		"partition": p.String(),
	}).Debug("audit entry written")

	return nil
}

// idOf returns the entity's "id" field as a string, or "" when it has none
// or it is the zero value.
func idOf(entity any) string {
	v, err := structValue(entity)
	if err != nil {
		return ""
	}
	for _, f := range fieldsOf(v.Type()) {
		if f.key != "id" {
			continue
		}
		fv, ok := fieldValue(v, f)
		if !ok {
			return ""
		}
		fv = indirect(fv)
		if !fv.IsValid() || fv.IsZero() {
			return ""
		}
		return fmt.Sprint(fv.Interface())
	}
	return ""
}
