// Package billingmongo provides the MongoDB-backed implementations of
// billing.EntitlementStore and billing.EventLedger.
//
// Document primary keys carry the uniqueness invariants: orders use the
// checkout-session id as _id, subscriptions the processor subscription
// id, pending claims the purchaser email. Create-if-absent operations
// are single inserts that treat duplicate-key errors as "already
// exists", and consume-once operations are single findAndModify calls,
// so no path needs multi-document transactions.
package billingmongo
