// Package shutdown provides orderly process shutdown for tcpctl.
//
// A Handler collects cleanup hooks (closing every tracked connection is
// the main one) and runs them exactly once, whether the process ends
// because a command finished, the REPL exited, or SIGTERM arrived.
//
// Usage:
//
//	h := shutdown.NewHandler(5*time.Second)
//	h.OnShutdown(func(ctx context.Context) error {
//		mgr.TeardownAll(ctx)
//		return nil
//	})
//	defer h.Shutdown()
package shutdown
