// Package httpserver runs the service's HTTP listener: env-driven
// timeouts, graceful shutdown on context cancellation or
// SIGINT/SIGTERM, and probe handlers for liveness and readiness.
//
// # Usage
//
//	var cfg httpserver.Config
//	config.MustLoad(&cfg)
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server exited", logger.Error(err))
//	}
//
// Run blocks until shutdown completes. Listen failures wrap
// ErrServerStart; shutdown failures wrap ErrServerShutdown.
package httpserver
