// Package client implements a table.ITableStore that forwards every call to an
// RPC server. Solver workers use it exactly like a local store.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"http://localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 4,
//	}
//
//	store, err := client.NewRPCTableStore(100, config, http.NewHttpClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatalf("Failed to connect: %v", err)
//	}
//	row, err := store.Get(0, 0)
//
// Errors returned by the server keep their table.RetCode, so callers can use
// table.HasCode on them just like on errors of a local store.
//
// The client adds no ordering beyond what the server provides: BatchInc is
// atomic on the server, but two calls from different clients may interleave.
package client
