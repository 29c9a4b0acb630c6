// Package dtable implements a distributed, fault-tolerant table store using
// the Dragonboat RAFT consensus library.
//
// Architecture:
//
//   - Store: implements table.ITableStore. It serializes increments into
//     commands, proposes them to the raft shard and reads rows with SyncRead.
//
//   - TableStateMachine: a Dragonboat IConcurrentStateMachine holding a db.RowDB.
//     The raft log index of an entry is used as the write index of the increment.
//
//   - internal: the Command and Query types and the binary command encoding.
//
// Since all row changes are additive increments, the order in which raft
// applies concurrent increments from different workers does not change the
// resulting rows. Reads are linearizable, GetDBInfo uses stale reads.
//
// Snapshots are delegated to the Save and Load methods of the RowDB and are
// fuzzy, Dragonboat is configured accordingly by the serve command.
//
// The store does not implement table.IRowWaiter, callers waiting for a row poll it.
package dtable
