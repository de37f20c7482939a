package og

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/yanun0323/decimal"
)

// Wire operations understood by the venue's order-entry endpoint.
const (
	OpAuth        = "auth"
	OpPing        = "ping"
	OpPong        = "pong"
	OpOrderCreate = "order.create"
	OpOrderAmend  = "order.amend"
	OpOrderCancel = "order.cancel"
)

// OrderParams describes one order operation. Price and quantity travel as
// JSON decimal strings, matching the venue's payloads.
type OrderParams struct {
	Category    string          `json:"category,omitempty"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side,omitempty"`
	OrderType   string          `json:"orderType,omitempty"`
	Qty         decimal.Decimal `json:"qty,omitempty"`
	Price       decimal.Decimal `json:"price,omitempty"`
	TimeInForce string          `json:"timeInForce,omitempty"`
	OrderID     string          `json:"orderId,omitempty"`
	OrderLinkID string          `json:"orderLinkId,omitempty"`
	ReduceOnly  bool            `json:"reduceOnly,omitempty"`
}

// OrderAck is the venue acknowledgment returned to a successful request.
type OrderAck struct {
	OrderID     string          `json:"orderId"`
	OrderLinkID string          `json:"orderLinkId,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Price       decimal.Decimal `json:"price,omitempty"`
	Qty         decimal.Decimal `json:"qty,omitempty"`
}

type request struct {
	ReqID  string            `json:"reqId,omitempty"`
	Header map[string]string `json:"header,omitempty"`
	Op     string            `json:"op"`
	Args   []any             `json:"args,omitempty"`
}

type response struct {
	ReqID   string   `json:"reqId,omitempty"`
	Op      string   `json:"op,omitempty"`
	RetCode int      `json:"retCode"`
	RetMsg  string   `json:"retMsg,omitempty"`
	ConnID  string   `json:"connId,omitempty"`
	Data    OrderAck `json:"data"`
}

func newOrderRequest(reqID, op string, params OrderParams) request {
	return request{
		ReqID: reqID,
		Header: map[string]string{
			"X-Timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
		},
		Op:   op,
		Args: []any{params},
	}
}

// newAuthRequest builds the auth payload from a shared secret and a
// short-lived expiry. Auth state does not survive reconnects, so this is
// rebuilt for every new transport connection.
func newAuthRequest(apiKey, apiSecret string, expires int64) request {
	return request{
		Op:   OpAuth,
		Args: []any{apiKey, expires, sign(apiSecret, expires)},
	}
}

func sign(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

var pingPayload = []byte(`{"op":"ping"}`)
