/**
 * @description
 * Message handling for the chain new-head feed.
 * Decodes JSON-RPC subscription notifications and hands block heads to the
 * registered callback (the worker's settlement confirmation pass).
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common/hexutil
 */

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Head is a decoded chain head notification.
type Head struct {
	Number uint64
	Hash   string
	Time   time.Time
}

// HeadFunc receives each new chain head.
type HeadFunc func(ctx context.Context, head Head)

// HeadHandler decodes feed messages and dispatches heads.
type HeadHandler struct {
	onHead HeadFunc
}

func NewHeadHandler(onHead HeadFunc) *HeadHandler {
	return &HeadHandler{onHead: onHead}
}

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params *struct {
		Subscription string  `json:"subscription"`
		Result       rpcHead `json:"result"`
	} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcHead struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

// HandleMessage processes a single raw frame from the websocket.
func (h *HeadHandler) HandleMessage(ctx context.Context, msg []byte) error {
	var m rpcMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return fmt.Errorf("failed to decode chain message: %w", err)
	}

	if m.Error != nil {
		return fmt.Errorf("chain rpc error %d: %s", m.Error.Code, m.Error.Message)
	}

	// Subscription acknowledgement (response to our eth_subscribe call).
	if m.ID != nil {
		return nil
	}

	if m.Method != "eth_subscription" || m.Params == nil {
		return nil
	}

	number, err := hexutil.DecodeUint64(m.Params.Result.Number)
	if err != nil {
		return fmt.Errorf("invalid head number %q: %w", m.Params.Result.Number, err)
	}

	head := Head{
		Number: number,
		Hash:   m.Params.Result.Hash,
		Time:   time.Now(),
	}
	if m.Params.Result.Timestamp != "" {
		if ts, err := hexutil.DecodeUint64(m.Params.Result.Timestamp); err == nil {
			head.Time = time.Unix(int64(ts), 0)
		}
	}

	if h.onHead != nil {
		h.onHead(ctx, head)
	}
	return nil
}
