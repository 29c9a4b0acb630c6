// Package http implements the HTTP transport for table RPCs.
//
// Requests are POSTed to /{shardId} with the serialized message as body, the
// response body is the serialized answer. The server also exposes every
// registered metric on GET /metrics in the Prometheus text format.
//
// The client spreads requests over all configured endpoints round-robin. A
// failed request is retried on the next endpoint up to RetryCount times.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use. Connect and Close must not
//	race with Send.
package http
