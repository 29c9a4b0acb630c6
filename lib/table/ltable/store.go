package ltable

import (
	"context"
	"sync"
	"sync/atomic"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/puzpuzpuz/xsync/v3"
)

var cellIncrements = vm.GetOrCreateCounter(`table_cell_increments_total{store="local"}`)

// notifier wakes all waiters of a table when one of its rows changes.
// The channel is closed and replaced on every write.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}

// Store is an in-process table store, safe for concurrent use.
type Store struct {
	db        db.RowDB
	index     atomic.Uint64
	notifiers *xsync.MapOf[uint32, *notifier]
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node,
// it uses a db.RowDB engine directly.
func NewLocalStore(factory table.DBFactory) *Store {
	return &Store{
		db:        factory(),
		notifiers: xsync.NewMapOf[uint32, *notifier](),
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *Store) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

func (s *Store) notifierFor(t uint32) *notifier {
	n, _ := s.notifiers.LoadOrCompute(t, func() *notifier {
		return &notifier{ch: make(chan struct{})}
	})
	return n
}

// --------------------------------------------------------------------------
// Interface Methods (docu see table/interface.go)
// --------------------------------------------------------------------------

func (s *Store) CreateTable(t uint32, info db.TableInfo) error {
	if !s.db.SupportsFeature(db.FeatureCreateTable) {
		return table.NewError(table.RetCUnsupportedOperation, "CreateTable operation is not supported")
	}
	return table.FromDBError(s.db.CreateTable(t, info))
}

func (s *Store) Get(t uint32, row uint64) ([]float64, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, table.NewError(table.RetCUnsupportedOperation, "Get operation is not supported")
	}
	values, err := s.db.GetRow(t, row)
	return values, table.FromDBError(err)
}

func (s *Store) Inc(t uint32, row uint64, col int, delta float64) error {
	if !s.db.SupportsFeature(db.FeatureInc) {
		return table.NewError(table.RetCUnsupportedOperation, "Inc operation is not supported")
	}
	if err := s.db.Inc(t, row, col, delta, s.incAndGetIndex()); err != nil {
		return table.FromDBError(err)
	}
	cellIncrements.Inc()
	s.notifierFor(t).broadcast()
	return nil
}

func (s *Store) BatchInc(t uint32, row uint64, update db.Update) error {
	if !s.db.SupportsFeature(db.FeatureBatchInc) {
		return table.NewError(table.RetCUnsupportedOperation, "BatchInc operation is not supported")
	}
	if err := s.db.BatchInc(t, row, update, s.incAndGetIndex()); err != nil {
		return table.FromDBError(err)
	}
	cellIncrements.Add(update.Len())
	s.notifierFor(t).broadcast()
	return nil
}

func (s *Store) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

// WaitRow implements table.IRowWaiter.
// The notification channel is taken before the row is read, so a write that
// happens between the read and the wait is never missed.
func (s *Store) WaitRow(ctx context.Context, t uint32, row uint64, cond func([]float64) bool) ([]float64, error) {
	n := s.notifierFor(t)
	for {
		changed := n.wait()
		values, err := s.Get(t, row)
		if err != nil {
			return nil, err
		}
		if cond(values) {
			return values, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
