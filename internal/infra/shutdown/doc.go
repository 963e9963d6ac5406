// Package shutdown coordinates process termination for memkv binaries.
//
// A Handler listens for SIGINT and SIGTERM, then runs the registered hooks
// in reverse order under a shared deadline. SIGHUP triggers the reload
// callbacks without stopping the process.
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("engine", engine.Close)
//	err := h.Wait(ctx)
package shutdown
