// Package risk owns the daily trade-count and realized-loss limits and is the
// single authority releasing candidate signals.
package risk

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"daybot-go/internal/market"
)

// Limits encodes the guard-rails applied to every candidate.
type Limits struct {
	MaxDailyTrades  int
	MaxDailyLoss    float64
	RiskPerTrade    float64
	MaxPositionSize int
}

func (l Limits) withDefaults() Limits {
	if l.MaxDailyTrades <= 0 {
		l.MaxDailyTrades = 10
	}
	if l.MaxDailyLoss <= 0 {
		l.MaxDailyLoss = 1000
	}
	if l.RiskPerTrade <= 0 {
		l.RiskPerTrade = 100
	}
	if l.MaxPositionSize <= 0 {
		l.MaxPositionSize = 1000
	}
	return l
}

// Status is a snapshot-consistent view of the daily counters and whichever
// gate, if any, is currently blocking new signals (empty reason when clear).
type Status struct {
	TradeCount   int
	RealizedLoss float64
	Blocking     market.RejectReason
}

// Gate evaluates candidates against the daily limits. Counters are global,
// not per symbol, so all mutation is serialized under one mutex.
type Gate struct {
	limits Limits

	mu     sync.Mutex
	trades int
	loss   float64
}

// NewGate builds a gate with zeroed daily counters.
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits.withDefaults()}
}

// Evaluate runs the gates strictly in order (first failure wins): trade count,
// daily loss, stop-below-entry sanity, positive position size. On acceptance
// the trade counter is incremented and the released Signal is returned;
// otherwise a Rejection is. Exactly one of the two results is non-nil.
func (g *Gate) Evaluate(strategy market.Strategy, style market.OrderStyle, tick market.Tick, stopLoss, volumeRatio float64) (*market.Signal, *market.Rejection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reject := func(reason market.RejectReason) (*market.Signal, *market.Rejection) {
		return nil, &market.Rejection{Reason: reason, Strategy: strategy, Symbol: tick.Symbol, Ts: time.Now()}
	}

	if g.trades >= g.limits.MaxDailyTrades {
		return reject(market.RejectMaxTrades)
	}
	if g.loss >= g.limits.MaxDailyLoss {
		return reject(market.RejectMaxDailyLoss)
	}
	// A buy whose stop is not below entry is nonsensical; rejected outright,
	// never silently corrected.
	if stopLoss >= tick.Price {
		return reject(market.RejectInvalidRisk)
	}
	riskPerShare := tick.Price - stopLoss
	qty := int(math.Floor(g.limits.RiskPerTrade / riskPerShare))
	if qty <= 0 {
		return reject(market.RejectInvalidRisk)
	}
	if qty > g.limits.MaxPositionSize {
		qty = g.limits.MaxPositionSize
	}

	g.trades++
	return &market.Signal{
		ID:          uuid.NewString(),
		Strategy:    strategy,
		Style:       style,
		Symbol:      tick.Symbol,
		Entry:       tick.Price,
		StopLoss:    stopLoss,
		VolumeRatio: volumeRatio,
		Qty:         qty,
		Ts:          time.Now(),
	}, nil
}

// RecordRealizedLoss adds a positive realized loss to the daily accumulator.
// Non-positive amounts are ignored; this is a one-way counter, not P&L.
func (g *Gate) RecordRealizedLoss(amount float64) {
	if amount <= 0 {
		return
	}
	g.mu.Lock()
	g.loss += amount
	g.mu.Unlock()
}

// ResetDaily zeroes both counters. Invoked once per new trading session by an
// external scheduler, never by the gate itself.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	g.trades = 0
	g.loss = 0
	g.mu.Unlock()
}

// CurrentStatus reports the counters and the blocking gate without side effects.
func (g *Gate) CurrentStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Status{TradeCount: g.trades, RealizedLoss: g.loss}
	switch {
	case g.trades >= g.limits.MaxDailyTrades:
		s.Blocking = market.RejectMaxTrades
	case g.loss >= g.limits.MaxDailyLoss:
		s.Blocking = market.RejectMaxDailyLoss
	}
	return s
}

// DailyTradeCount returns the number of signals released today.
func (g *Gate) DailyTradeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trades
}

// DailyRealizedLoss returns today's accumulated realized loss.
func (g *Gate) DailyRealizedLoss() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loss
}
