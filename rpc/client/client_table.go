package client

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/ValentinKolb/dLasso/rpc/serializer"
	"github.com/ValentinKolb/dLasso/rpc/transport"
)

// NewRPCTableStore creates a table store that forwards all calls to the given shard of a server.
// The transport is connected before the store is returned.
func NewRPCTableStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (table.ITableStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	Logger.Debugf("connected table store client to shard %d", shardId)

	return &rpcTableStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcTableStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the table package in interface.go)
// --------------------------------------------------------------------------

func (s *rpcTableStore) CreateTable(t uint32, info db.TableInfo) error {
	_, err := s.invoke(common.NewCreateTableRequest(t, info))
	return err
}

func (s *rpcTableStore) Get(t uint32, row uint64) ([]float64, error) {
	resp, err := s.invoke(common.NewGetRequest(t, row))
	if err != nil {
		return nil, err
	}
	if resp.Values == nil {
		// encodings drop empty slices, a zero width row is still a row
		return []float64{}, nil
	}
	return resp.Values, nil
}

func (s *rpcTableStore) Inc(t uint32, row uint64, col int, delta float64) error {
	_, err := s.invoke(common.NewIncRequest(t, row, col, delta))
	return err
}

func (s *rpcTableStore) BatchInc(t uint32, row uint64, update db.Update) error {
	if update.Len() == 0 {
		return nil
	}
	_, err := s.invoke(common.NewBatchIncRequest(t, row, update))
	return err
}

func (s *rpcTableStore) GetDBInfo() (db.DatabaseInfo, error) {
	var info db.DatabaseInfo
	resp, err := s.invoke(common.NewInfoRequest())
	if err != nil {
		return info, err
	}
	if err = json.Unmarshal(resp.Meta, &info); err != nil {
		return info, table.NewError(table.RetCInternalError, fmt.Sprintf("decode database info: %s", err))
	}
	return info, nil
}
