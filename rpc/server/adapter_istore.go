package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// IRPCServerAdapter maps a decoded request onto a shard. Failures are reported
// in the Err field of the returned message, never as a Go error.
type IRPCServerAdapter interface {
	Handle(req *common.Message, store store.IStore) (resp *common.Message)
}

// NewIStoreServerAdapter returns the adapter for store.IStore shards
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, store store.IStore) *common.Message {
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTKVSet:
		err := store.Set(req.Key, req.Value)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTKVSetE:
		err := store.SetE(req.Key, req.Value, req.TTL)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTKVSetEIfUnset:
		err := store.SetEIfUnset(req.Key, req.Value, req.TTL)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTKVDelete:
		err := store.Delete(req.Keys...)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTKVMSet:
		err := store.MSet(req.Keys, req.Values)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTKVGet:
		val, ok, err := store.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := store.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTKVMGet:
		values, err := store.MGet(req.Keys)
		return common.NewMGetResponse(values, err)
	case common.MsgTKVInfo:
		info, err := store.GetDBInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
