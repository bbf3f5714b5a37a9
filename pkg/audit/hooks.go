package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/clinicq/pkg/async"
	"github.com/platinummonkey/clinicq/pkg/observability"
)

// Hooks is called by the storage layer after a mutation has committed.
// Implementations must not fail the caller.
type Hooks interface {
	AfterCreate(ctx context.Context, entity any)
	AfterUpdate(ctx context.Context, before, after any, touched []string)
	AfterDelete(ctx context.Context, before, entity any)
	AfterSoftDelete(ctx context.Context, before, entity any)
	AfterRestore(ctx context.Context, entity any)
}

// MutationRecorder is the part of Recorder used by HookAdapter
type MutationRecorder interface {
	Build(ctx context.Context, m Mutation) (*LogEntry, error)
	Write(ctx context.Context, entry *LogEntry) error
}

// Mode selects when the audit write happens relative to the hook call
type Mode string

const (
	// ModeSync writes the entry before the hook returns
	ModeSync Mode = "sync"

	// ModeAsync builds the entry before the hook returns and writes it in
	// the background
	ModeAsync Mode = "async"
)

// ParseMode parses a dispatch mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSync:
		return ModeSync, nil
	case ModeAsync:
		return ModeAsync, nil
	default:
		return "", fmt.Errorf("invalid audit mode %q (want sync or async)", s)
	}
}

// DefaultWriteTimeout bounds one audit write
const DefaultWriteTimeout = 5 * time.Second

// HookAdapter implements Hooks on top of a recorder. Every failure, including
// panics, is logged at error level and counted, never returned or re-raised.
// Failed writes are not retried.
type HookAdapter struct {
	recorder MutationRecorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	mode     Mode
	timeout  time.Duration
	group    *async.Group
}

var _ Hooks = (*HookAdapter)(nil)

// HookOption configures a HookAdapter
type HookOption func(*HookAdapter)

// WithMode selects sync or async dispatch
func WithMode(mode Mode) HookOption {
	return func(h *HookAdapter) { h.mode = mode }
}

// WithWriteTimeout bounds each audit write. Zero or negative means no deadline.
func WithWriteTimeout(d time.Duration) HookOption {
	return func(h *HookAdapter) { h.timeout = d }
}

// WithHookLogger sets the logger failures are reported to
func WithHookLogger(logger *observability.Logger) HookOption {
	return func(h *HookAdapter) { h.logger = logger }
}

// WithHookMetrics enables in-flight and failure counters
func WithHookMetrics(metrics *observability.Metrics) HookOption {
	return func(h *HookAdapter) { h.metrics = metrics }
}

// NewHookAdapter creates a hook adapter. The default mode is ModeSync.
func NewHookAdapter(recorder MutationRecorder, opts ...HookOption) *HookAdapter {
	h := &HookAdapter{
		recorder: recorder,
		logger:   observability.NopLogger(),
		mode:     ModeSync,
		timeout:  DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.group = async.NewGroup(func(taskName string, err error) {
		h.metrics.RecordAuditFailure("panic")
		h.logger.WithError(err).WithField("task", taskName).Error("audit write panicked")
	})
	return h
}

func (h *HookAdapter) AfterCreate(ctx context.Context, entity any) {
	h.handle(ctx, Mutation{Event: EventCreate, Entity: entity})
}

func (h *HookAdapter) AfterUpdate(ctx context.Context, before, after any, touched []string) {
	h.handle(ctx, Mutation{Event: EventUpdate, Entity: after, Before: before, Touched: touched})
}

func (h *HookAdapter) AfterDelete(ctx context.Context, before, entity any) {
	h.handle(ctx, Mutation{Event: EventDelete, Entity: entity, Before: before})
}

func (h *HookAdapter) AfterSoftDelete(ctx context.Context, before, entity any) {
	h.handle(ctx, Mutation{Event: EventSoftDelete, Entity: entity, Before: before})
}

func (h *HookAdapter) AfterRestore(ctx context.Context, entity any) {
	h.handle(ctx, Mutation{Event: EventRestore, Entity: entity})
}

// Wait blocks until all background writes have finished or ctx is done
func (h *HookAdapter) Wait(ctx context.Context) error {
	return h.group.Wait(ctx)
}

func (h *HookAdapter) handle(ctx context.Context, m Mutation) {
	defer observability.RecoverPanicWithCallback(h.logger, "audit hook", func(error) {
		h.metrics.RecordAuditFailure("panic")
	})

	entry, err := h.recorder.Build(ctx, m)
	if err != nil {
		h.report(ctx, m.Event, err)
		return
	}
	if entry == nil {
		return
	}

	// The mutation has committed; request cancellation must not drop its entry.
	detached := context.WithoutCancel(ctx)

	if h.mode == ModeAsync {
		h.metrics.HookStarted()
		h.group.Go(detached, h.timeout, "audit write", func(wctx context.Context) error {
			defer h.metrics.HookFinished()
			if err := h.recorder.Write(wctx, entry); err != nil {
				h.report(wctx, entry.Event, err)
			}
			return nil
		})
		return
	}

	wctx := detached
	if h.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(detached, h.timeout)
		defer cancel()
	}
	if err := h.recorder.Write(wctx, entry); err != nil {
		h.report(wctx, entry.Event, err)
	}
}

func (h *HookAdapter) report(ctx context.Context, event Event, err error) {
	fields := map[string]interface{}{"event": event}

	var rerr *RecordError
	if errors.As(err, &rerr) {
		fields["item_type"] = rerr.ItemType
		fields["stage"] = rerr.Stage
		if rerr.Partition != (Partition{}) {
			fields["partition"] = rerr.Partition.String()
		}
	}

	observability.Enrich(ctx, h.logger).
		WithFields(fields).
		WithError(err).
		Error("failed to record audit entry")
}
