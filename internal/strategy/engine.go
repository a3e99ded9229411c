// Package strategy converts tick and bar streams into trade candidates, one
// independent state machine per symbol per strategy. Evaluators never block
// and never perform I/O; absence of a candidate is a normal outcome.
package strategy

import (
	"errors"
	"strings"
	"time"

	"daybot-go/internal/market"
)

// ErrBlankSymbol is returned by required setup calls given an empty symbol.
var ErrBlankSymbol = errors.New("strategy: blank symbol")

// Candidate is a strategy emission awaiting the risk gate.
type Candidate struct {
	Strategy    market.Strategy
	Style       market.OrderStyle
	Tick        market.Tick
	StopLoss    float64
	VolumeRatio float64
}

// Engine runs the gap and dip state machines side by side. The two windows
// are checked independently per tick; either, both, or neither may fire.
type Engine struct {
	gap *gapStrategy
	dip *dipStrategy
}

// Option adjusts engine construction.
type Option func(*engineOpts)

type engineOpts struct {
	loc *time.Location
}

// WithLocation pins window evaluation to a market timezone instead of the
// timestamp's own location.
func WithLocation(loc *time.Location) Option {
	return func(o *engineOpts) { o.loc = loc }
}

// NewEngine builds a strategy engine from the two parameter bags. Unset
// fields take conservative defaults.
func NewEngine(gapCfg GapConfig, dipCfg DipConfig, opts ...Option) *Engine {
	var o engineOpts
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		gap: newGapStrategy(gapCfg, o.loc),
		dip: newDipStrategy(dipCfg, o.loc),
	}
}

// SetReferencePrice supplies the prior-session close the gap strategy
// measures strength against. Required before gap can fire for the symbol.
func (e *Engine) SetReferencePrice(symbol string, price float64) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ErrBlankSymbol
	}
	e.gap.setReference(symbol, price)
	return nil
}

// ProcessTick routes the tick to both evaluators. Blank symbols are ignored
// silently: ticks are a best-effort path.
func (e *Engine) ProcessTick(t market.Tick) []Candidate {
	if strings.TrimSpace(t.Symbol) == "" {
		return nil
	}
	var out []Candidate
	if c := e.gap.onTick(t); c != nil {
		out = append(out, *c)
	}
	if c := e.dip.onTick(t); c != nil {
		out = append(out, *c)
	}
	return out
}

// ProcessBar folds the bar into the symbol's VWAP and volume history.
func (e *Engine) ProcessBar(b market.Bar) {
	if strings.TrimSpace(b.Symbol) == "" {
		return
	}
	e.dip.onBar(b)
}

// VWAP reports the symbol's running VWAP, zero before any bar volume.
func (e *Engine) VWAP(symbol string) float64 {
	return e.dip.vwap(symbol)
}

// ResetSymbol discards both state machines for the symbol. The next tick
// recreates them from scratch.
func (e *Engine) ResetSymbol(symbol string) {
	e.gap.reset(symbol)
	e.dip.reset(symbol)
}
