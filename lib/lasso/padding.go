package lasso

import (
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
)

// paddingTraffic reads and increments rows of a table nobody evaluates.
// It emulates the communication volume of a larger model.
type paddingTraffic struct {
	store   table.ITableStore
	tableID uint32
	rows    int
	ones    db.Update
}

func newPaddingTraffic(store table.ITableStore, tableID uint32, rows, cols int) *paddingTraffic {
	ones := make([]float64, cols)
	for i := range ones {
		ones[i] = 1
	}
	return &paddingTraffic{
		store:   store,
		tableID: tableID,
		rows:    rows,
		ones:    db.DenseUpdate(ones, 0),
	}
}

func (p *paddingTraffic) read() error {
	for row := 0; row < p.rows; row++ {
		if _, err := p.store.Get(p.tableID, uint64(row)); err != nil {
			return err
		}
	}
	return nil
}

func (p *paddingTraffic) write() error {
	for row := 0; row < p.rows; row++ {
		if err := p.store.BatchInc(p.tableID, uint64(row), p.ones); err != nil {
			return err
		}
	}
	return nil
}
