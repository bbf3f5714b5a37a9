package reqctx

import (
	"context"
	"unicode/utf8"

	"github.com/platinummonkey/clinicq/pkg/contextkeys"
)

// ActorType identifies who initiated an operation
type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorSystem ActorType = "SYSTEM"
)

// MaxSourceLength is the maximum number of characters kept in Source
const MaxSourceLength = 50

// RequestContext is the immutable actor/request metadata for one logical task.
// Empty strings mean the value is unknown.
type RequestContext struct {
	ActorID   string    `json:"actor_id,omitempty"`
	ActorType ActorType `json:"actor_type"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Params holds the raw values a RequestContext is built from
type Params struct {
	ActorID   string
	IP        string
	UserAgent string
	RequestID string
	Source    string
}

// New builds a RequestContext, deriving ActorType from the presence of an
// actor and truncating Source to MaxSourceLength characters.
func New(p Params) RequestContext {
	actorType := ActorSystem
	if p.ActorID != "" {
		actorType = ActorUser
	}

	return RequestContext{
		ActorID:   p.ActorID,
		ActorType: actorType,
		IP:        p.IP,
		UserAgent: p.UserAgent,
		RequestID: p.RequestID,
		Source:    truncate(p.Source, MaxSourceLength),
	}
}

// System returns the context used when no request is bound
func System() RequestContext {
	return RequestContext{ActorType: ActorSystem}
}

// With returns a child of ctx with rc bound as the ambient request context
func With(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextkeys.RequestContextKey, rc)
}

// Run calls fn with a context derived from ctx that carries rc. The binding
// is visible only to fn and whatever it passes the derived context to.
func Run(ctx context.Context, rc RequestContext, fn func(context.Context) error) error {
	return fn(With(ctx, rc))
}

// Get returns the request context bound to ctx, if any
func Get(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(contextkeys.RequestContextKey).(RequestContext)
	return rc, ok
}

// FromContext returns the bound request context or System() when none is bound
func FromContext(ctx context.Context) RequestContext {
	if rc, ok := Get(ctx); ok {
		return rc
	}
	return System()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
