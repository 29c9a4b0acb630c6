package dtable

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/lib/table/dtable/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TableStateMachine is a state machine implementation for Dragonboat RAFT
type TableStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.RowDB
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory table.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &TableStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding RowDB method.
func (fsm *TableStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, table.NewError(table.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGetRow:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, table.NewError(table.RetCUnsupportedOperation, "Get operation is not supported")
		}
		values, err := fsm.database.GetRow(q.Table, q.Row)
		if err != nil {
			return nil, table.FromDBError(err)
		}
		return values, nil
	case internal.QueryTGetTableInfo:
		info, ok := fsm.database.GetTableInfo(q.Table)
		return internal.TableInfoResult{Ok: ok, Info: info}, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, table.NewError(table.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// result builds the sm.Result of a command from the error of the db operation
func result(err error, format string, args ...any) sm.Result {
	if err != nil {
		var code table.RetCode = table.RetCInternalError
		if e, ok := table.FromDBError(err).(*table.Error); ok {
			code = e.Code
		}
		return sm.Result{Value: uint64(code), Data: []byte(err.Error())}
	}
	return sm.Result{Value: uint64(table.RetCSuccess), Data: []byte(fmt.Sprintf(format, args...))}
}

// Update handles write commands on the RowDB instance.
// The raft log index of an entry is used as its write index.
func (fsm *TableStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	cmd := internal.Command{}

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(table.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(table.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		// Check if the db supports the operation
		feat, err := cmd.Type.ToDBFeature()
		if err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(table.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}
		if !fsm.database.SupportsFeature(feat) {
			entries[idx].Result = sm.Result{
				Value: uint64(table.RetCUnsupportedOperation),
				Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
			}
			continue
		}

		switch cmd.Type {
		case internal.CommandTCreateTable:
			err := fsm.database.CreateTable(cmd.Table, cmd.Info)
			entries[idx].Result = result(err, "created table=%d", cmd.Table)
		case internal.CommandTInc, internal.CommandTBatchInc:
			err := fsm.database.BatchInc(cmd.Table, cmd.Row, cmd.Update, e.Index)
			entries[idx].Result = result(err, "inc: table=%d row=%d n=%d", cmd.Table, cmd.Row, cmd.Update.Len())
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *TableStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *TableStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used RowDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the db from a snapshot
func (fsm *TableStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used RowDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *TableStateMachine) Close() error {
	return fsm.database.Close()
}
