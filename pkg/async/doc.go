// Package async provides panic-safe background execution.
//
// SafeGo runs a function in a goroutine with a timeout and recovers panics,
// reporting both errors and panics to a handler. Group does the same while
// tracking the goroutines so callers can drain them on shutdown:
//
//	g := async.NewGroup(func(name string, err error) {
//		logger.WithError(err).Errorf("%s failed", name)
//	})
//	g.Go(context.WithoutCancel(ctx), 5*time.Second, "audit write", fn)
//	_ = g.Wait(shutdownCtx)
package async
