package server

import (
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request against a store and returns the response.
	// Errors are reported in the response, never returned.
	Handle(req *common.Message, store table.ITableStore) (resp *common.Message)
}
