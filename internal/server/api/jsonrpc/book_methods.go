package jsonrpc

import (
	"encoding/json"

	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

func (h *Handler) limitBuy(raw json.RawMessage) (interface{}, error) {
	return h.limitOrder(raw, h.engine.LimitBuy)
}

func (h *Handler) limitSell(raw json.RawMessage) (interface{}, error) {
	return h.limitOrder(raw, h.engine.LimitSell)
}

func (h *Handler) limitOrder(raw json.RawMessage, op func(state.Address, int, fixed.Amount, fixed.Amount, uint64) (uint64, error)) (interface{}, error) {
	p, err := decode[LimitOrderParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	id, err := op(state.Address(p.Caller), idx, p.Price, p.Volume, p.InsertHint)
	if err != nil {
		return nil, opError(err)
	}
	return OrderResult{OrderID: id}, nil
}

func (h *Handler) marketBuy(raw json.RawMessage) (interface{}, error) {
	return h.marketOrder(raw, h.engine.MarketBuy)
}

func (h *Handler) marketSell(raw json.RawMessage) (interface{}, error) {
	return h.marketOrder(raw, h.engine.MarketSell)
}

func (h *Handler) marketOrder(raw json.RawMessage, op func(state.Address, int, fixed.Amount, fixed.Amount) error) (interface{}, error) {
	p, err := decode[MarketOrderParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), idx, p.MaxVolume, p.PriceLimit); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) modifyBuy(raw json.RawMessage) (interface{}, error) {
	return h.modifyOrder(raw, h.engine.ModifyBuy)
}

func (h *Handler) modifySell(raw json.RawMessage) (interface{}, error) {
	return h.modifyOrder(raw, h.engine.ModifySell)
}

func (h *Handler) modifyOrder(raw json.RawMessage, op func(state.Address, uint64, fixed.Amount, fixed.Amount) error) (interface{}, error) {
	p, err := decode[ModifyOrderParams](raw)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), p.OrderID, p.NewVol, p.NewPrice); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) deleteBuy(raw json.RawMessage) (interface{}, error) {
	return h.deleteOrder(raw, h.engine.DeleteBuy)
}

func (h *Handler) deleteSell(raw json.RawMessage) (interface{}, error) {
	return h.deleteOrder(raw, h.engine.DeleteSell)
}

func (h *Handler) deleteOrder(raw json.RawMessage, op func(state.Address, uint64) error) (interface{}, error) {
	p, err := decode[OrderIDParams](raw)
	if err != nil {
		return nil, err
	}
	if err := op(state.Address(p.Caller), p.OrderID); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}

func (h *Handler) orderGetBuy(raw json.RawMessage) (interface{}, error) {
	return h.orderGet(raw, h.engine.GetBuyOrder)
}

func (h *Handler) orderGetSell(raw json.RawMessage) (interface{}, error) {
	return h.orderGet(raw, h.engine.GetSellOrder)
}

func (h *Handler) orderGet(raw json.RawMessage, get func(uint64) book.Order) (interface{}, error) {
	p, err := decode[OrderIDParams](raw)
	if err != nil {
		return nil, err
	}
	o := get(p.OrderID)
	info := OrderInfo{
		OrderID:   o.ID,
		Maker:     string(o.Maker),
		Side:      o.Side.String(),
		Price:     o.Price,
		Volume:    o.Volume,
		Prev:      o.Prev,
		Next:      o.Next,
		Tombstone: o.Tombstoned(),
	}
	if !o.Tombstoned() {
		info.Market = h.engine.MarketNames()[o.Index]
	}
	return info, nil
}

func (h *Handler) bookInfo(raw json.RawMessage) (interface{}, error) {
	p, err := decode[MarketQueryParams](raw)
	if err != nil {
		return nil, err
	}
	idx, err := h.marketIndex(p.Market)
	if err != nil {
		return nil, err
	}
	buys, sells := h.engine.OpenOrders(idx)
	return BookInfo{
		Market:    p.Market,
		BuyHead:   h.engine.BuyHead(idx),
		SellHead:  h.engine.SellHead(idx),
		OpenBuys:  buys,
		OpenSells: sells,
	}, nil
}
