package jsonrpc

import (
	"encoding/json"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

func (h *Handler) quoteBalance(raw json.RawMessage) (interface{}, error) {
	p, err := decode[BalanceParams](raw)
	if err != nil {
		return nil, err
	}
	return h.engine.QuoteBalance(state.Address(p.Owner)), nil
}

func (h *Handler) quoteApprove(raw json.RawMessage) (interface{}, error) {
	p, err := decode[TokenParams](raw)
	if err != nil {
		return nil, err
	}
	if err := h.engine.ApproveQuote(state.Address(p.Caller), state.Address(p.Spender), p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) quoteTransfer(raw json.RawMessage) (interface{}, error) {
	p, err := decode[TokenParams](raw)
	if err != nil {
		return nil, err
	}
	if err := h.engine.TransferQuote(state.Address(p.Caller), state.Address(p.To), p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) staticBalance(raw json.RawMessage) (interface{}, error) {
	return h.balance(raw, h.engine.StaticBalance)
}

func (h *Handler) dynamicBalance(raw json.RawMessage) (interface{}, error) {
	return h.balance(raw, h.engine.DynamicBalance)
}

func (h *Handler) balance(raw json.RawMessage, get func(int, state.Address) (fixed.Amount, error)) (interface{}, error) {
	p, err := decode[BalanceParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	bal, err := get(idx, state.Address(p.Owner))
	if err != nil {
		return nil, opError(err)
	}
	return bal, nil
}

func (h *Handler) staticApprove(raw json.RawMessage) (interface{}, error) {
	return h.tokenSpenderOp(raw, h.engine.ApproveStatic)
}

func (h *Handler) dynamicApprove(raw json.RawMessage) (interface{}, error) {
	return h.tokenSpenderOp(raw, h.engine.ApproveDynamic)
}

func (h *Handler) tokenSpenderOp(raw json.RawMessage, op func(state.Address, int, state.Address, fixed.Amount) error) (interface{}, error) {
	p, err := decode[TokenParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), idx, state.Address(p.Spender), p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) staticTransfer(raw json.RawMessage) (interface{}, error) {
	return h.tokenDstOp(raw, h.engine.TransferStatic)
}

func (h *Handler) dynamicTransfer(raw json.RawMessage) (interface{}, error) {
	return h.tokenDstOp(raw, h.engine.TransferDynamic)
}

func (h *Handler) tokenDstOp(raw json.RawMessage, op func(state.Address, int, state.Address, fixed.Amount) error) (interface{}, error) {
	p, err := decode[TokenParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), idx, state.Address(p.To), p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) portToDynamic(raw json.RawMessage) (interface{}, error) {
	return h.portOp(raw, h.engine.PortToDynamic)
}

func (h *Handler) portToStatic(raw json.RawMessage) (interface{}, error) {
	return h.portOp(raw, h.engine.PortToStatic)
}

func (h *Handler) portOp(raw json.RawMessage, op func(state.Address, int, fixed.Amount) error) (interface{}, error) {
	p, err := decode[TokenParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), idx, p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}
