// Package app wires the worker together: it loads the resource archive,
// puts the admission guard in front of it and serves the check, health,
// live-session and metrics routes over one HTTP listener.
//
// # Initialization Flow
//
//	1. Initialize logging and OpenTelemetry
//	2. Open the resource archive (failures abort before any port is bound)
//	3. Create the guard, check and health services
//	4. Set up the router and middleware
//	5. Bind the listener and serve
//
// # Usage
//
//	a, err := app.New(cfg)
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the guard stops admitting work, live sessions are
// closed, in-flight HTTP requests get the configured shutdown timeout to
// finish and the resource is released last.
package app
