package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/fxperp/fxperpd/internal/core/engine"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/oracle"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// Handler dispatches JSON-RPC methods onto the engine.
type Handler struct {
	engine  *engine.Engine
	feeds   map[string]*oracle.SettableSource
	methods map[string]func(json.RawMessage) (interface{}, error)
}

// NewHandler registers the full method surface over eng.
func NewHandler(eng *engine.Engine) *Handler {
	h := &Handler{
		engine:  eng,
		feeds:   make(map[string]*oracle.SettableSource),
		methods: make(map[string]func(json.RawMessage) (interface{}, error)),
	}

	// Vault lifecycle
	h.methods["vault_open"] = h.vaultOpen
	h.methods["vault_supply"] = h.vaultSupply
	h.methods["vault_withdraw"] = h.vaultWithdraw
	h.methods["vault_borrow"] = h.vaultBorrow
	h.methods["vault_repay"] = h.vaultRepay
	h.methods["vault_close"] = h.vaultClose
	h.methods["vault_liquidate"] = h.vaultLiquidate
	h.methods["vault_get"] = h.vaultGet

	// Tokens
	h.methods["quote_balance"] = h.quoteBalance
	h.methods["quote_approve"] = h.quoteApprove
	h.methods["quote_transfer"] = h.quoteTransfer
	h.methods["static_balance"] = h.staticBalance
	h.methods["static_approve"] = h.staticApprove
	h.methods["static_transfer"] = h.staticTransfer
	h.methods["dynamic_balance"] = h.dynamicBalance
	h.methods["dynamic_approve"] = h.dynamicApprove
	h.methods["dynamic_transfer"] = h.dynamicTransfer
	h.methods["port_to_dynamic"] = h.portToDynamic
	h.methods["port_to_static"] = h.portToStatic
	h.methods["multiplier"] = h.multiplier

	// Order book
	h.methods["limit_buy"] = h.limitBuy
	h.methods["limit_sell"] = h.limitSell
	h.methods["market_buy"] = h.marketBuy
	h.methods["market_sell"] = h.marketSell
	h.methods["modify_buy"] = h.modifyBuy
	h.methods["modify_sell"] = h.modifySell
	h.methods["delete_buy"] = h.deleteBuy
	h.methods["delete_sell"] = h.deleteSell
	h.methods["order_get_buy"] = h.orderGetBuy
	h.methods["order_get_sell"] = h.orderGetSell
	h.methods["book_info"] = h.bookInfo

	// Oracle and meta
	h.methods["spot_price"] = h.spotPrice
	h.methods["twap_price"] = h.twapPrice
	h.methods["markets"] = h.marketList
	h.methods["book_address"] = h.bookAddress
	h.methods["vault_address"] = h.vaultAddress

	// Operator methods; deployments front these with transport auth.
	h.methods["oracle_set_price"] = h.oracleSetPrice
	h.methods["admin_mint"] = h.adminMint

	return h
}

// RegisterFeed exposes a settable oracle source to oracle_set_price.
func (h *Handler) RegisterFeed(key string, src *oracle.SettableSource) {
	h.feeds[key] = src
}

// Handle dispatches one method call.
func (h *Handler) Handle(method string, params json.RawMessage) (interface{}, error) {
	fn, ok := h.methods[method]
	if !ok {
		return nil, &Error{Code: codeMethodNotFound, Message: fmt.Sprintf("method %s not found", method)}
	}
	return fn(params)
}

func decode[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &Error{Code: codeInvalidParams, Message: err.Error()}
	}
	return p, nil
}

// opError maps engine rejections onto the operation error code.
func opError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: codeOperation, Message: err.Error()}
}

// Error implements the error interface so handlers can return *Error
// directly.
func (e *Error) Error() string {
	return e.Message
}

func (h *Handler) marketIndex(name string) (int, error) {
	idx, err := h.engine.MarketIndex(name)
	if err != nil {
		return 0, &Error{Code: codeInvalidParams, Message: err.Error()}
	}
	return idx, nil
}

func (h *Handler) vaultOpen(raw json.RawMessage) (interface{}, error) {
	p, err := decode[OpenVaultParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	id, err := h.engine.OpenVault(state.Address(p.Caller), idx, p.CollateralIndex)
	if err != nil {
		return nil, opError(err)
	}
	return VaultResult{VaultID: id}, nil
}

func (h *Handler) vaultSupply(raw json.RawMessage) (interface{}, error) {
	return h.vaultOp(raw, h.engine.Supply)
}

func (h *Handler) vaultWithdraw(raw json.RawMessage) (interface{}, error) {
	return h.vaultOp(raw, h.engine.Withdraw)
}

func (h *Handler) vaultBorrow(raw json.RawMessage) (interface{}, error) {
	return h.vaultOp(raw, h.engine.Borrow)
}

func (h *Handler) vaultRepay(raw json.RawMessage) (interface{}, error) {
	return h.vaultOp(raw, h.engine.Repay)
}

func (h *Handler) vaultOp(raw json.RawMessage, op func(state.Address, int, uint64, fixed.Amount) error) (interface{}, error) {
	p, err := decode[VaultParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), idx, p.Vault, p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) vaultClose(raw json.RawMessage) (interface{}, error) {
	p, err := decode[VaultParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	if err := h.engine.CloseVault(state.Address(p.Caller), idx, p.Vault); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) vaultLiquidate(raw json.RawMessage) (interface{}, error) {
	p, err := decode[VaultParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	id, err := h.engine.Liquidate(state.Address(p.Caller), idx, p.Vault)
	if err != nil {
		return nil, opError(err)
	}
	return VaultResult{VaultID: id}, nil
}

func (h *Handler) vaultGet(raw json.RawMessage) (interface{}, error) {
	p, err := decode[VaultParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	v, err := h.engine.GetVault(idx, p.Vault)
	if err != nil {
		return nil, opError(err)
	}
	return VaultInfo{
		VaultID:         v.ID,
		Owner:           string(v.Owner),
		CollateralIndex: v.CollateralIndex,
		Collateral:      v.Collateral,
		Debt:            v.Debt,
		Tombstone:       v.Tombstoned(),
	}, nil
}

func (h *Handler) multiplier(raw json.RawMessage) (interface{}, error) {
	p, err := decode[MarketQueryParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	m, err := h.engine.Multiplier(idx)
	if err != nil {
		return nil, opError(err)
	}
	return m, nil
}

func (h *Handler) marketList(json.RawMessage) (interface{}, error) {
	return h.engine.MarketNames(), nil
}

func (h *Handler) bookAddress(json.RawMessage) (interface{}, error) {
	return string(h.engine.BookAddress()), nil
}

func (h *Handler) vaultAddress(raw json.RawMessage) (interface{}, error) {
	p, err := decode[MarketQueryParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	addr, err := h.engine.VaultAddress(idx)
	if err != nil {
		return nil, opError(err)
	}
	return string(addr), nil
}

func (h *Handler) spotPrice(raw json.RawMessage) (interface{}, error) {
	p, err := decode[PriceParams](raw)
	if err != nil {
		return nil, err
	}
	price, err := h.engine.SpotPrice(p.Key)
	if err != nil {
		return nil, opError(err)
	}
	return price, nil
}

func (h *Handler) twapPrice(raw json.RawMessage) (interface{}, error) {
	p, err := decode[PriceParams](raw)
	if err != nil {
		return nil, err
	}
	price, err := h.engine.TwapPrice(p.Key, p.Window)
	if err != nil {
		return nil, opError(err)
	}
	return price, nil
}
