// Package rpc makes table stores available over the network, so that solver
// workers on different machines share parameter tables.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, server and client configuration, logging.
//
//   - transport: network abstraction and the HTTP implementation.
//
//   - serializer: message encodings (binary, JSON, GOB, optionally snappy compressed).
//
//   - client: a table.ITableStore that forwards every call to a server.
//
//   - server: hosts local or raft replicated table stores and answers requests.
package rpc
