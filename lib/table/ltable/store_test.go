package ltable

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/db/engines/dense"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *Store {
	return NewLocalStore(func() db.RowDB {
		return dense.NewDenseDB(nil)
	})
}

func TestStoreOperations(t *testing.T) {
	s := newStore()
	defer s.Close()

	require.NoError(t, s.CreateTable(1, db.TableInfo{RowCapacity: 3, Staleness: 1}))
	require.NoError(t, s.Inc(1, 0, 1, 2.5))
	require.NoError(t, s.BatchInc(1, 0, db.DenseUpdate([]float64{1, 1, 1}, 0)))

	row, err := s.Get(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3.5, 1}, row)

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, 1, info.NumTables)
}

func TestStoreErrorCodes(t *testing.T) {
	s := newStore()
	defer s.Close()

	_, err := s.Get(7, 0)
	assert.True(t, table.HasCode(err, table.RetCUnknownTable), "got %v", err)

	require.NoError(t, s.CreateTable(1, db.TableInfo{RowCapacity: 2}))
	err = s.Inc(1, 0, 2, 1)
	assert.True(t, table.HasCode(err, table.RetCOutOfRange), "got %v", err)

	err = s.CreateTable(1, db.TableInfo{RowCapacity: 5})
	assert.True(t, table.HasCode(err, table.RetCInvalidOperation), "got %v", err)
}

func TestWaitRowWakesOnWrite(t *testing.T) {
	s := newStore()
	defer s.Close()
	require.NoError(t, s.CreateTable(1, db.TableInfo{RowCapacity: 1}))

	done := make(chan []float64, 1)
	go func() {
		values, err := s.WaitRow(context.Background(), 1, 0, func(v []float64) bool {
			return v[0] >= 3
		})
		if err != nil {
			t.Errorf("WaitRow: %v", err)
		}
		done <- values
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Inc(1, 0, 0, 1))
	}

	select {
	case values := <-done:
		assert.Equal(t, []float64{3}, values)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitRow did not return after the row reached the condition")
	}
}

func TestWaitRowCancel(t *testing.T) {
	s := newStore()
	defer s.Close()
	require.NoError(t, s.CreateTable(1, db.TableInfo{RowCapacity: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.WaitRow(ctx, 1, 0, func(v []float64) bool { return false })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
