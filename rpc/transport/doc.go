// Package transport defines the interfaces for moving serialized table
// messages between clients and servers. Requests are routed by shard ID, the
// transport never looks into the payload.
package transport
