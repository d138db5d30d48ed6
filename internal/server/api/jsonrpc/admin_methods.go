package jsonrpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/state"
)

// SetPriceParams pushes a feed observation into the oracle.
type SetPriceParams struct {
	Key   string       `json:"key"`
	Price fixed.Amount `json:"price"`
	// At is the observation time; 0 means now.
	At int64 `json:"at,omitempty"`
}

// MintParams credits quote collateral to an account.
type MintParams struct {
	To     string       `json:"to"`
	Amount fixed.Amount `json:"amount"`
}

func (h *Handler) oracleSetPrice(raw json.RawMessage) (interface{}, error) {
	p, err := decode[SetPriceParams](raw)
	if err != nil {
		return nil, err
	}
	src, ok := h.feeds[p.Key]
	if !ok {
		return nil, &Error{Code: codeInvalidParams, Message: fmt.Sprintf("no feed registered for key %q", p.Key)}
	}
	at := p.At
	if at == 0 {
		at = time.Now().Unix()
	}
	src.Set(p.Price, at)
	return struct{}{}, nil
}

func (h *Handler) adminMint(raw json.RawMessage) (interface{}, error) {
	p, err := decode[MintParams](raw)
	if err != nil {
		return nil, err
	}
	if err := h.engine.MintCollateral(state.Address(p.To), p.Amount); err != nil {
		return nil, opError(err)
	}
	return struct{}{}, nil
}
