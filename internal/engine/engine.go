// Package engine wires the strategy engine to the risk gate and fans released
// and rejected signals out to registered observers.
package engine

import (
	"sync"

	"github.com/rs/zerolog"

	"daybot-go/internal/market"
	"daybot-go/internal/metrics"
	"daybot-go/internal/risk"
	"daybot-go/internal/strategy"
)

// Engine is the consolidated process-tick / process-bar / signal-events
// contract exposed to external collaborators.
type Engine struct {
	log        zerolog.Logger
	strategies *strategy.Engine
	gate       *risk.Gate

	mu       sync.RWMutex
	onSignal []func(market.Signal)
	onReject []func(market.Rejection)
}

// New composes the strategy engine and risk gate.
func New(log zerolog.Logger, strategies *strategy.Engine, gate *risk.Gate) *Engine {
	return &Engine{log: log, strategies: strategies, gate: gate}
}

// OnSignal registers an observer for released signals.
func (e *Engine) OnSignal(fn func(market.Signal)) {
	e.mu.Lock()
	e.onSignal = append(e.onSignal, fn)
	e.mu.Unlock()
}

// OnRejection registers an observer for risk-gate rejections.
func (e *Engine) OnRejection(fn func(market.Rejection)) {
	e.mu.Lock()
	e.onReject = append(e.onReject, fn)
	e.mu.Unlock()
}

// SetReferencePrice forwards the prior close to the gap strategy.
func (e *Engine) SetReferencePrice(symbol string, price float64) error {
	return e.strategies.SetReferencePrice(symbol, price)
}

// ProcessTick runs both strategies and gates any candidates they emit.
func (e *Engine) ProcessTick(t market.Tick) {
	for _, c := range e.strategies.ProcessTick(t) {
		sig, rej := e.gate.Evaluate(c.Strategy, c.Style, c.Tick, c.StopLoss, c.VolumeRatio)
		if sig != nil {
			metrics.SignalsTotal.WithLabelValues(string(sig.Strategy)).Inc()
			e.emitSignal(*sig)
			continue
		}
		metrics.RejectionsTotal.WithLabelValues(string(rej.Reason)).Inc()
		e.emitRejection(*rej)
	}
}

// ProcessBar forwards the bar to the strategy engine. Bars alone never emit.
func (e *Engine) ProcessBar(b market.Bar) {
	e.strategies.ProcessBar(b)
}

// Gate exposes the risk gate for daily resets and loss recording by the
// surrounding application.
func (e *Engine) Gate() *risk.Gate { return e.gate }

func (e *Engine) emitSignal(sig market.Signal) {
	e.mu.RLock()
	observers := e.onSignal
	e.mu.RUnlock()
	for _, fn := range observers {
		e.isolate("signal", func() { fn(sig) })
	}
}

func (e *Engine) emitRejection(rej market.Rejection) {
	e.mu.RLock()
	observers := e.onReject
	e.mu.RUnlock()
	for _, fn := range observers {
		e.isolate("rejection", func() { fn(rej) })
	}
}

// isolate wraps one observer invocation so a failing observer never affects
// its peers or the caller.
func (e *Engine) isolate(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("kind", kind).Msg("observer panicked")
		}
	}()
	fn()
}
