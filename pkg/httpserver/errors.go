package httpserver

import "errors"

var (
	ErrServerStart    = errors.New("httpserver: server failed to start")
	ErrServerShutdown = errors.New("httpserver: graceful shutdown failed")
)
