// Package jsonrpc exposes the protocol surface as a JSON-RPC 2.0 API with
// a websocket fill feed.
package jsonrpc

import (
	"encoding/json"

	"github.com/fxperp/fxperpd/internal/core/fixed"
)

// JSON-RPC 2.0 error codes.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	// codeOperation covers engine-level rejections (insufficient balance,
	// undercollateralized, stale feed, ...).
	codeOperation = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Amounts cross the wire as decimal strings ("1.0625") and land directly
// in fixed.Amount via its text unmarshaller.

// VaultParams addresses one vault operation.
type VaultParams struct {
	Caller string       `json:"caller"`
	Market string       `json:"market"`
	Vault  uint64       `json:"vault"`
	Amount fixed.Amount `json:"amount,omitempty"`
}

// OpenVaultParams opens a vault.
type OpenVaultParams struct {
	Caller          string `json:"caller"`
	Market          string `json:"market"`
	CollateralIndex int    `json:"collateral_index"`
}

// TokenParams moves or approves token balances.
type TokenParams struct {
	Caller  string       `json:"caller"`
	Market  string       `json:"market,omitempty"`
	To      string       `json:"to,omitempty"`
	Spender string       `json:"spender,omitempty"`
	Amount  fixed.Amount `json:"amount"`
}

// BalanceParams queries a balance.
type BalanceParams struct {
	Market string `json:"market,omitempty"`
	Owner  string `json:"owner"`
}

// LimitOrderParams places a limit order.
type LimitOrderParams struct {
	Caller     string       `json:"caller"`
	Market     string       `json:"market"`
	Price      fixed.Amount `json:"price"`
	Volume     fixed.Amount `json:"volume"`
	InsertHint uint64       `json:"insert_hint,omitempty"`
}

// MarketOrderParams places a market order.
type MarketOrderParams struct {
	Caller     string       `json:"caller"`
	Market     string       `json:"market"`
	MaxVolume  fixed.Amount `json:"max_volume"`
	PriceLimit fixed.Amount `json:"price_limit"`
}

// ModifyOrderParams rewrites a resting order.
type ModifyOrderParams struct {
	Caller   string       `json:"caller"`
	OrderID  uint64       `json:"order_id"`
	NewPrice fixed.Amount `json:"new_price"`
	NewVol   fixed.Amount `json:"new_volume"`
}

// OrderIDParams addresses one resting order.
type OrderIDParams struct {
	Caller  string `json:"caller,omitempty"`
	OrderID uint64 `json:"order_id"`
}

// MarketQueryParams addresses one market.
type MarketQueryParams struct {
	Market string `json:"market"`
}

// PriceParams queries the oracle.
type PriceParams struct {
	Key    string `json:"key"`
	Window int64  `json:"window,omitempty"`
}

// OrderResult returns an allocated id; 0 means fully filled as taker.
type OrderResult struct {
	OrderID uint64 `json:"order_id"`
}

// VaultResult returns an allocated vault id.
type VaultResult struct {
	VaultID uint64 `json:"vault_id"`
}

// OrderInfo mirrors a book order record.
type OrderInfo struct {
	OrderID   uint64       `json:"order_id"`
	Maker     string       `json:"maker"`
	Market    string       `json:"market"`
	Side      string       `json:"side"`
	Price     fixed.Amount `json:"price"`
	Volume    fixed.Amount `json:"volume"`
	Prev      uint64       `json:"prev"`
	Next      uint64       `json:"next"`
	Tombstone bool         `json:"tombstone"`
}

// VaultInfo mirrors a vault record.
type VaultInfo struct {
	VaultID         uint64       `json:"vault_id"`
	Owner           string       `json:"owner"`
	CollateralIndex int          `json:"collateral_index"`
	Collateral      fixed.Amount `json:"collateral"`
	Debt            fixed.Amount `json:"debt"`
	Tombstone       bool         `json:"tombstone"`
}

// BookInfo summarizes one market's book.
type BookInfo struct {
	Market    string `json:"market"`
	BuyHead   uint64 `json:"buy_head"`
	SellHead  uint64 `json:"sell_head"`
	OpenBuys  int    `json:"open_buys"`
	OpenSells int    `json:"open_sells"`
}

// FillEvent is the websocket feed payload.
type FillEvent struct {
	Type    string       `json:"type"`
	Market  int          `json:"market"`
	Side    string       `json:"side"`
	OrderID uint64       `json:"order_id"`
	Maker   string       `json:"maker"`
	Taker   string       `json:"taker"`
	Price   fixed.Amount `json:"price"`
	Volume  fixed.Amount `json:"volume"`
	Time    int64        `json:"time"`
}
