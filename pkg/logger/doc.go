// Package logger wraps log/slog with functional-option configuration,
// attribute helpers shared across the billing services, and injection
// of context values into every record.
//
// New builds a *slog.Logger from Option functions: output format and
// level, static attributes, and ContextExtractor callbacks that pull
// request-scoped values (request ids and similar) from context at log
// time. WithDevelopment and WithProduction bundle sensible defaults
// per environment.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("billing-api"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "plan change applied",
//	    logger.UserID(userID),
//	    logger.PlanType(string(plan)),
//	)
//
// Attribute helpers like Error and UserID return an empty Attr for
// zero values, so callers never need a nil check before logging.
package logger
