package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/clinicq/pkg/contextkeys"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/reqctx"
)

// RequestIDHeader carries the caller's request id and is echoed on the response
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength matches the width of audit_logs.request_id
const maxRequestIDLength = 100

// ActorFunc returns the authenticated user behind a request, or "" for none
type ActorFunc func(r *http.Request) string

// PrincipalActor reads the user the authentication layer stored with contextkeys.WithPrincipal
func PrincipalActor(r *http.Request) string {
	return contextkeys.GetPrincipal(r.Context())
}

// HeaderActor trusts a header set by an authenticating gateway
func HeaderActor(header string) ActorFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(header))
	}
}

// RequestContextMiddleware binds a reqctx.RequestContext to every request so
// that audit entries written while serving it carry the actor and request
// metadata. A nil actor treats every request as anonymous. When logger is set
// it is bound to the request context as well.
func RequestContextMiddleware(actor ActorFunc, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)

			var actorID string
			if actor != nil {
				actorID = actor(r)
			}

			rc := reqctx.New(reqctx.Params{
				ActorID:   actorID,
				IP:        clientIP(r),
				UserAgent: r.UserAgent(),
				RequestID: requestID,
				Source:    r.Method + " " + r.URL.Path,
			})

			ctx := r.Context()
			if logger != nil {
				ctx = observability.WithLogger(ctx, logger)
			}

			_ = reqctx.Run(ctx, rc, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
		})
	}
}

// clientIP prefers proxy headers over the socket address. Header values that
// do not parse as an IP address are ignored.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return ""
}

func parseIP(value string) string {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return ""
	}
	return ip.String()
}
