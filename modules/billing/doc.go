// Package billing exposes the billing domain over HTTP: the processor
// webhook endpoint, plan change and claim operations, and the
// entitlement read API. Handlers translate domain sentinel errors into
// status codes; only transport concerns live here.
package billing
