package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// observeMessage records one handled message per shard and message type
func observeMessage(shardID uint64, req, resp *common.Message, start time.Time) {
	labels := fmt.Sprintf(`{shard="%d",type=%q}`, shardID, req.MsgType)
	metrics.GetOrCreateCounter(`ddoc_rpc_messages_total` + labels).Inc()
	metrics.GetOrCreateHistogram(`ddoc_rpc_message_duration_seconds` + labels).UpdateDuration(start)
	if resp.Err != "" {
		metrics.GetOrCreateCounter(`ddoc_rpc_message_errors_total` + labels).Inc()
	}
}

var (
	unknownShardRequests = metrics.NewCounter(`ddoc_rpc_unknown_shard_total`)
	malformedRequests    = metrics.NewCounter(`ddoc_rpc_malformed_requests_total`)
)
