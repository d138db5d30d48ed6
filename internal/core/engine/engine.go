// Package engine is the composition root: it wires the oracle, the
// collateral ledger, one vault ledger and token pair per synthetic
// currency, and the order book, and serializes every operation behind a
// single mutex so callers observe all-or-nothing state transitions.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/fixed"
	"github.com/fxperp/fxperpd/internal/core/oracle"
	"github.com/fxperp/fxperpd/internal/core/state"
	"github.com/fxperp/fxperpd/internal/core/token"
	"github.com/fxperp/fxperpd/internal/core/vault"
)

// Engine errors.
var (
	ErrNoMarkets       = errors.New("at least one market is required")
	ErrDuplicateMarket = errors.New("duplicate market name")
	ErrUnknownMarket   = errors.New("unknown market")
)

// MarketSpec configures one synthetic currency.
type MarketSpec struct {
	// Name of the synthetic, e.g. "fxEUR". Also names its debt tokens.
	Name string
	// CollateralOracleKey prices the quote collateral in units of the
	// synthetic, for vault health checks.
	CollateralOracleKey string
	// PegKey is the oracle key the funding epoch reads the peg from.
	PegKey string
	// MaxLTV overrides Params.MaxLTV for this market when positive.
	MaxLTV fixed.Amount
}

// Params configures a full engine instance.
type Params struct {
	// QuoteName is the collateral token's display name.
	QuoteName string
	// MaxLTV, LiquidationRatio and DampingDivisor are the default risk
	// parameters applied to every market's vault ledger.
	MaxLTV           fixed.Amount
	LiquidationRatio fixed.Amount
	DampingDivisor   int64
	// Funding gates the per-market epoch accumulator.
	Funding book.FundingConfig
	Markets []MarketSpec
}

// Market bundles the per-synthetic components.
type Market struct {
	Name    string
	Vaults  *vault.Ledger
	Static  *token.Static
	Dynamic *token.Dynamic
}

// Engine serializes all protocol operations over the wired components.
// Caller identity is taken at face value; transport-level authentication
// is out of scope here.
type Engine struct {
	mu      sync.Mutex
	now     func() int64
	oracle  *oracle.Oracle
	quote   *state.Ledger
	markets []Market
	byName  map[string]int
	book    *book.Book
}

// New wires an engine from its parameters. Custody addresses are reserved
// system addresses derived from the market names.
func New(orc *oracle.Oracle, p Params) (*Engine, error) {
	if len(p.Markets) == 0 {
		return nil, ErrNoMarkets
	}
	e := &Engine{
		now:    func() int64 { return time.Now().Unix() },
		oracle: orc,
		quote:  state.NewLedger(p.QuoteName),
		byName: make(map[string]int, len(p.Markets)),
	}
	bookMarkets := make([]book.Market, 0, len(p.Markets))
	for i, spec := range p.Markets {
		if _, dup := e.byName[spec.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMarket, spec.Name)
		}
		maxLTV := p.MaxLTV
		if spec.MaxLTV.IsPositive() {
			maxLTV = spec.MaxLTV
		}
		static, debt := token.NewStatic(spec.Name + ":static")
		ledger, funding := vault.NewLedger(
			state.Address("sys/vault/"+spec.Name),
			vault.Params{
				MaxLTV:           maxLTV,
				LiquidationRatio: p.LiquidationRatio,
				DampingDivisor:   p.DampingDivisor,
			},
			orc,
			[]vault.Collateral{{Index: 0, Token: e.quote, OracleKey: spec.CollateralOracleKey}},
			debt,
		)
		dynamic := token.NewDynamic(spec.Name, ledger, static)
		e.markets = append(e.markets, Market{
			Name:    spec.Name,
			Vaults:  ledger,
			Static:  static,
			Dynamic: dynamic,
		})
		e.byName[spec.Name] = i
		bookMarkets = append(bookMarkets, book.Market{
			Dynamic: dynamic,
			Funding: funding,
			PegKey:  spec.PegKey,
		})
	}
	e.book = book.New(state.Address("sys/book"), e.quote, orc, bookMarkets, p.Funding)
	return e, nil
}

// SetClock replaces the wall clock, for tests and replay.
func (e *Engine) SetClock(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetRecorder installs the fill recorder (history store, feed fanout).
func (e *Engine) SetRecorder(r book.FillRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.SetRecorder(r)
}

// SetEpochRecorder installs the funding epoch recorder.
func (e *Engine) SetEpochRecorder(r book.EpochRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.SetEpochRecorder(r)
}

// Oracle returns the price oracle for feed registration at boot.
func (e *Engine) Oracle() *oracle.Oracle {
	return e.oracle
}

// MarketIndex resolves a market name to its index.
func (e *Engine) MarketIndex(name string) (int, error) {
	i, ok := e.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMarket, name)
	}
	return i, nil
}

// MarketNames lists the configured markets in index order.
func (e *Engine) MarketNames() []string {
	names := make([]string, len(e.markets))
	for i, m := range e.markets {
		names[i] = m.Name
	}
	return names
}

func (e *Engine) market(index int) (*Market, error) {
	if index < 0 || index >= len(e.markets) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownMarket, index)
	}
	return &e.markets[index], nil
}

func (e *Engine) ctx(caller state.Address) state.Context {
	return state.Context{Caller: caller, Now: e.now()}
}

// MintCollateral credits quote collateral to dst. Provisioning only; the
// daemon exposes it behind the genesis/admin path, never the public API.
func (e *Engine) MintCollateral(dst state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.Mint(dst, amount)
}

// QuoteBalance returns owner's collateral balance.
func (e *Engine) QuoteBalance(owner state.Address) fixed.Amount {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.BalanceOf(owner)
}

// ApproveQuote sets spender's allowance over the caller's collateral.
func (e *Engine) ApproveQuote(caller, spender state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.Approve(e.ctx(caller), spender, amount)
}

// TransferQuote moves collateral from the caller to dst.
func (e *Engine) TransferQuote(caller, dst state.Address, amount fixed.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.Transfer(e.ctx(caller), dst, amount)
}

// BookAddress returns the order book's escrow address, the spender to
// approve before placing orders.
func (e *Engine) BookAddress() state.Address {
	return e.book.Address()
}

// VaultAddress returns a market's custody address, the spender to approve
// before supplying collateral.
func (e *Engine) VaultAddress(market int) (state.Address, error) {
	m, err := e.market(market)
	if err != nil {
		return "", err
	}
	return m.Vaults.Address(), nil
}
