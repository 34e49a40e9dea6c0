// Package bootstrap orchestrates the lifecycle of a tilekit process.
//
// It wires a component registry, a logger and startup/shutdown hooks into
// one Run loop with signal-driven graceful shutdown:
//
//	app := bootstrap.NewApp("tilekit-server")
//	app.RegisterComponent(hub)
//	app.RegisterComponent(srv)
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run starts the components in registration order, verifies their health,
// blocks until SIGINT/SIGTERM and stops them in reverse order. RunTask does
// the same around a finite task instead of a signal wait.
package bootstrap
