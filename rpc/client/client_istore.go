package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It connects the transport and returns a store.IStore and an error
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Set(key string, value []byte) (err error) {
	req := common.NewSetRequest(key, value)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) SetE(key string, value []byte, ttl time.Duration) (err error) {
	req := common.NewSetERequest(key, value, ttl)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) SetEIfUnset(key string, value []byte, ttl time.Duration) (err error) {
	req := common.NewSetEIfUnsetRequest(key, value, ttl)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) Delete(keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	req := common.NewDeleteRequest(keys...)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) Get(key string) (value []byte, loaded bool, err error) {
	req := common.NewGetRequest(key)
	resp, err := i.invoke(req)
	if err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, nil
	}
	if resp.Value == nil {
		// empty values are dropped by some serializers
		return []byte{}, true, nil
	}
	return resp.Value, true, nil
}

func (i *rpcStore) Has(key string) (loaded bool, err error) {
	req := common.NewHasRequest(key)
	resp, err := i.invoke(req)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) MGet(keys []string) (values [][]byte, err error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	req := common.NewMGetRequest(keys)
	resp, err := i.invoke(req)
	if err != nil {
		return nil, err
	}
	if len(resp.Found) != len(keys) {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("got %d results for %d keys", len(resp.Found), len(keys)))
	}

	values = make([][]byte, len(keys))
	for idx, found := range resp.Found {
		if !found {
			continue
		}
		if idx < len(resp.Values) && resp.Values[idx] != nil {
			values[idx] = resp.Values[idx]
		} else {
			values[idx] = []byte{}
		}
	}
	return values, nil
}

func (i *rpcStore) MSet(keys []string, values [][]byte) (err error) {
	if err := store.ValidatePairs(keys, values); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	req := common.NewMSetRequest(keys, values)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) GetDBInfo() (info db.DatabaseInfo, err error) {
	req := common.NewInfoRequest()
	resp, err := i.invoke(req)
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("failed to decode database info: %w", err)
	}
	return info, nil
}

// Close closes the transport of the store
func (i *rpcStore) Close() error {
	return i.transport.Close()
}
