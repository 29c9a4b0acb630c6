package client

import (
	"fmt"

	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/ValentinKolb/dLasso/rpc/serializer"
	"github.com/ValentinKolb/dLasso/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter stores all data needed to talk to one shard of a server
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and waits for the response.
// Errors reported by the server are returned as *table.Error with the code the server sent.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, table.NewError(table.RetCInternalError, fmt.Sprintf("serialize request: %s", err))
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		return nil, table.NewError(table.RetCInternalError, fmt.Sprintf("send request: %s", err))
	}

	resp := &common.Message{}
	if err = a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, table.NewError(table.RetCInternalError, fmt.Sprintf("deserialize response: %s", err))
	}

	if err = resp.Error(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, table.NewError(table.RetCInternalError,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}
	return resp, nil
}
