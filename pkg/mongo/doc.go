// Package mongo provides MongoDB connection management for the billing
// services: environment-driven configuration, connection retries that
// tolerate Atlas and container startup flakiness, and a health probe
// for HTTP readiness endpoints.
//
// # Usage
//
//	cfg := mongo.Config{ConnectionURL: "mongodb://localhost:27017"}
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Client().Disconnect(context.Background())
//
// Connection failures are wrapped in ErrConnectionFailed so callers can
// branch with errors.Is.
package mongo
