// Package reqctx carries per-request actor and origin metadata through a call chain.
//
// # Overview
//
// A RequestContext is built once by the request boundary and bound to a
// context.Context with Run. Everything that receives the derived context,
// including goroutines started from it, sees the same value through Get.
// Contexts of concurrent requests never observe each other's binding because
// each binding lives only in the context tree derived from its own request.
//
// # Usage
//
//	rc := reqctx.New(reqctx.Params{
//		ActorID:   userID,
//		IP:        ip,
//		UserAgent: r.UserAgent(),
//		RequestID: requestID,
//		Source:    r.Method + " " + r.URL.Path,
//	})
//	err := reqctx.Run(r.Context(), rc, func(ctx context.Context) error {
//		return service.Book(ctx, appointment)
//	})
//
// Code that runs without a bound context (migrations, scheduled jobs) gets
// ok == false from Get and should treat the actor as SYSTEM.
package reqctx
