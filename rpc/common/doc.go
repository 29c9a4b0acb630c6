// Package common provides the data structures shared by the rpc server,
// client and transports.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, used for requests
//     and responses. Which fields are set depends on the MessageType. Errors
//     of the table package keep their RetCode when sent over the wire.
//
//   - MessageType: Enumeration of the table operations plus control messages.
//
//   - ServerConfig: Configuration of a server, the shards it hosts, RAFT
//     parameters and the http endpoint. Provides conversions to Dragonboat
//     configurations.
//
//   - ClientConfig: Configuration of clients, controlling endpoints, timeouts and
//     retry behavior.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's logger
//     factory, so project and raft log lines share one format.
package common
