// Package internal contains the commands and queries exchanged between the
// dtable store client and its Dragonboat state machine, together with the
// compact binary encoding of commands written to the raft log.
package internal
