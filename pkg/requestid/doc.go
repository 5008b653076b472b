// Package requestid attaches a correlation id to every HTTP request.
//
// Middleware reuses a valid client-supplied "X-Request-ID" header or
// generates a UUIDv4, stores the id in the request context, and echoes
// it back in the response. FromContext reads it anywhere downstream,
// and LoggerExtractor plugs into the logger package so every log
// record emitted while handling a request carries its id.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//
// Invalid or missing client ids are silently replaced; the package
// never returns errors.
package requestid
