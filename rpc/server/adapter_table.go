package server

import (
	"fmt"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
)

// NewTableServerAdapter creates an adapter translating messages to table.ITableStore calls
func NewTableServerAdapter() IRPCServerAdapter {
	return &tableServerAdapterImpl{}
}

type tableServerAdapterImpl struct{}

func requestCounter(t common.MessageType) *vm.Counter {
	return vm.GetOrCreateCounter(fmt.Sprintf(`rpc_requests_total{type=%q}`, t.String()))
}

func (adapter *tableServerAdapterImpl) Handle(req *common.Message, store table.ITableStore) *common.Message {
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}
	requestCounter(req.MsgType).Inc()

	switch req.MsgType {
	case common.MsgTTblCreate:
		err := store.CreateTable(req.Table, req.TableInfo())
		return common.NewCreateTableResponse(err)
	case common.MsgTTblGet:
		values, err := store.Get(req.Table, req.Row)
		return common.NewGetResponse(values, err)
	case common.MsgTTblInc:
		if len(req.Cols) != 1 || len(req.Values) != 1 {
			return common.NewIncResponse(table.NewError(table.RetCInvalidOperation, "inc needs exactly one column and delta"))
		}
		err := store.Inc(req.Table, req.Row, req.Cols[0], req.Values[0])
		return common.NewIncResponse(err)
	case common.MsgTTblBatchInc:
		err := store.BatchInc(req.Table, req.Row, req.Update())
		return common.NewBatchIncResponse(err)
	case common.MsgTTblInfo:
		info, err := store.GetDBInfo()
		return common.NewInfoResponse(info, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC TableAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
