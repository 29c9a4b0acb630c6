package server

import (
	"testing"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/ValentinKolb/dLasso/rpc/serializer"
	"github.com/ValentinKolb/dLasso/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureTransport records the registered handler instead of listening
type captureTransport struct {
	handler transport.ServerHandleFunc
}

func (c *captureTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	c.handler = handler
}

func (c *captureTransport) Listen(common.ServerConfig) error {
	return nil
}

func newTestServer(t *testing.T) (*captureTransport, serializer.IRPCSerializer) {
	t.Helper()
	tr := &captureTransport{}
	ser := serializer.NewBinarySerializer()
	s := NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: 7, Type: common.ShardTypeLocalTable}},
		Endpoint:      "127.0.0.1:0",
		TimeoutSecond: 1,
		LogLevel:      "error",
	}, tr, ser)
	require.NoError(t, s.init())
	require.NotNil(t, tr.handler)
	return tr, ser
}

func call(t *testing.T, tr *captureTransport, ser serializer.IRPCSerializer, shard uint64, req *common.Message) *common.Message {
	t.Helper()
	reqBytes, err := ser.Serialize(*req)
	require.NoError(t, err)
	var resp common.Message
	require.NoError(t, ser.Deserialize(tr.handler(shard, reqBytes), &resp))
	return &resp
}

func TestServerRoundTrip(t *testing.T) {
	tr, ser := newTestServer(t)

	resp := call(t, tr, ser, 7, common.NewCreateTableRequest(1, db.TableInfo{RowCapacity: 3, Staleness: 2}))
	require.NoError(t, resp.Error())

	resp = call(t, tr, ser, 7, common.NewIncRequest(1, 0, 2, 1.5))
	require.NoError(t, resp.Error())

	update := db.NewUpdate(2)
	update.Add(0, 1)
	update.Add(2, 0.5)
	resp = call(t, tr, ser, 7, common.NewBatchIncRequest(1, 0, update))
	require.NoError(t, resp.Error())

	resp = call(t, tr, ser, 7, common.NewGetRequest(1, 0))
	require.NoError(t, resp.Error())
	assert.Equal(t, []float64{1, 0, 2}, resp.Values)

	resp = call(t, tr, ser, 7, common.NewInfoRequest())
	require.NoError(t, resp.Error())
	assert.NotEmpty(t, resp.Meta)
}

func TestServerErrors(t *testing.T) {
	tr, ser := newTestServer(t)

	t.Run("unknown shard", func(t *testing.T) {
		resp := call(t, tr, ser, 99, common.NewGetRequest(1, 0))
		assert.Equal(t, common.MsgTError, resp.MsgType)
		assert.Error(t, resp.Error())
	})

	t.Run("unknown table keeps its code", func(t *testing.T) {
		resp := call(t, tr, ser, 7, common.NewGetRequest(42, 0))
		assert.True(t, table.HasCode(resp.Error(), table.RetCUnknownTable))
	})

	t.Run("garbage request", func(t *testing.T) {
		var resp common.Message
		require.NoError(t, ser.Deserialize(tr.handler(7, []byte{0xff, 0xff}), &resp))
		assert.Equal(t, common.MsgTError, resp.MsgType)
	})

	t.Run("inc without column", func(t *testing.T) {
		call(t, tr, ser, 7, common.NewCreateTableRequest(3, db.TableInfo{RowCapacity: 1}))
		resp := call(t, tr, ser, 7, &common.Message{MsgType: common.MsgTTblInc, Table: 3})
		assert.True(t, table.HasCode(resp.Error(), table.RetCInvalidOperation))
	})
}

func TestAdapterWithoutStore(t *testing.T) {
	resp := NewTableServerAdapter().Handle(common.NewInfoRequest(), nil)
	assert.Equal(t, common.MsgTError, resp.MsgType)
}

func TestTwoServersInOneProcess(t *testing.T) {
	first, ser := newTestServer(t)
	second, _ := newTestServer(t)

	resp := call(t, first, ser, 7, common.NewCreateTableRequest(1, db.TableInfo{RowCapacity: 1}))
	require.NoError(t, resp.Error())

	// shards of different servers are independent
	resp = call(t, second, ser, 7, common.NewGetRequest(1, 0))
	assert.True(t, table.HasCode(resp.Error(), table.RetCUnknownTable))
}
