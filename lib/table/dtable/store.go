package dtable

import (
	"context"
	"errors"
	"fmt"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/lib/table/dtable/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("table")

	cellIncrements = vm.GetOrCreateCounter(`table_cell_increments_total{store="raft"}`)
)

// Store is a table store replicated with raft.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type Store struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	stale   bool
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) *Store {
	return &Store{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// SetStaleReads makes Get read the local replica instead of a linearizable read.
// The replica applies the log in order, so a clock read from it never runs
// ahead of the row updates published before that clock.
func (s *Store) SetStaleReads(stale bool) {
	s.stale = stale
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns a *table.Error if an error occurs, or nil on success.
func (s *Store) write(cmd internal.Command) error {
	data := cmd.Serialize()
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return table.NewError(table.RetCInternalError, err.Error())
		}
		if res.Value != uint64(table.RetCSuccess) {
			return table.NewError(table.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return table.NewError(table.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// SyncRead is used by default. If linearizability is not required, stale can be
// set to use the faster StaleRead function.
// Reads failing with a system busy error are retried up to 5 times.
func read[R any](s *Store, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var (
			res interface{}
			err error
		)

		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			var tErr *table.Error
			if errors.As(err, &tErr) {
				return zero, tErr
			}
			return zero, table.NewError(table.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, table.NewError(table.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, table.NewError(table.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see table/interface.go)
// --------------------------------------------------------------------------

func (s *Store) CreateTable(t uint32, info db.TableInfo) error {
	return s.write(internal.Command{
		Type:  internal.CommandTCreateTable,
		Table: t,
		Info:  info,
	})
}

func (s *Store) Get(t uint32, row uint64) ([]float64, error) {
	return read[[]float64](s, internal.Query{
		Type:  internal.QueryTGetRow,
		Table: t,
		Row:   row,
	}, s.stale)
}

func (s *Store) Inc(t uint32, row uint64, col int, delta float64) error {
	u := db.NewUpdate(1)
	u.Add(col, delta)
	err := s.write(internal.Command{
		Type:   internal.CommandTInc,
		Table:  t,
		Row:    row,
		Update: u,
	})
	if err == nil {
		cellIncrements.Inc()
	}
	return err
}

func (s *Store) BatchInc(t uint32, row uint64, update db.Update) error {
	if len(update.Cols) != len(update.Deltas) {
		return table.FromDBError(db.ErrInvalidUpdate)
	}
	err := s.write(internal.Command{
		Type:   internal.CommandTBatchInc,
		Table:  t,
		Row:    row,
		Update: update,
	})
	if err == nil {
		cellIncrements.Add(update.Len())
	}
	return err
}

// TableInfo returns the configuration of a table, ok is false for unknown tables
func (s *Store) TableInfo(t uint32) (db.TableInfo, bool, error) {
	res, err := read[internal.TableInfoResult](s, internal.Query{
		Type:  internal.QueryTGetTableInfo,
		Table: t,
	}, false)
	return res.Info, res.Ok, err
}

func (s *Store) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
