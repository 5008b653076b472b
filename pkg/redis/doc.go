// Package redis connects the billing services to Redis, which backs the
// processed-event ledger. It wraps go-redis with retrying connection
// setup and a health probe.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// Sentinel errors (ErrNotReady, ErrInvalidConnectionURL) wrap the
// underlying go-redis errors via errors.Join for errors.Is checks.
package redis
