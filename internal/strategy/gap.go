package strategy

import (
	"sync"
	"time"

	"daybot-go/internal/market"
)

// GapConfig tunes the pre-market gap breakout strategy. Window bounds are
// clock offsets since midnight.
type GapConfig struct {
	MonitorStart       time.Duration
	DecisionAt         time.Duration
	GapStrengthPct     float64
	FakeoutPullbackPct float64
	StopLossPct        float64
}

func (c GapConfig) withDefaults() GapConfig {
	if c.MonitorStart <= 0 {
		c.MonitorStart = MustClock("09:00")
	}
	if c.DecisionAt <= 0 {
		c.DecisionAt = MustClock("09:30")
	}
	if c.GapStrengthPct <= 0 {
		c.GapStrengthPct = 0.02
	}
	if c.FakeoutPullbackPct <= 0 {
		c.FakeoutPullbackPct = 0.01
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.02
	}
	return c
}

// gapState accumulates one symbol's monitoring window. The fakeout flag is
// sticky: once set it never clears within the session. decided is the
// one-shot guard around the decision instant.
type gapState struct {
	mu      sync.Mutex
	high    float64
	last    float64
	fakeout bool
	decided bool
}

type gapStrategy struct {
	cfg GapConfig
	loc *time.Location

	mu     sync.Mutex
	refs   map[string]float64
	states map[string]*gapState
}

func newGapStrategy(cfg GapConfig, loc *time.Location) *gapStrategy {
	return &gapStrategy{
		cfg:    cfg.withDefaults(),
		loc:    loc,
		refs:   make(map[string]float64),
		states: make(map[string]*gapState),
	}
}

func (g *gapStrategy) setReference(symbol string, price float64) {
	g.mu.Lock()
	g.refs[symbol] = price
	g.mu.Unlock()
}

func (g *gapStrategy) reset(symbol string) {
	g.mu.Lock()
	delete(g.states, symbol)
	g.mu.Unlock()
}

// onTick tracks the session high and latest price inside the monitoring
// window and evaluates the one-shot decision the first time the clock reaches
// the decision instant. A nil return is not a rejection: no candidate means
// the risk gate is never consulted.
func (g *gapStrategy) onTick(t market.Tick) *Candidate {
	off := clockOffset(t.Ts, g.loc)
	if off < g.cfg.MonitorStart {
		return nil
	}

	g.mu.Lock()
	st := g.states[t.Symbol]
	if st == nil {
		if off > g.cfg.DecisionAt {
			// never seen during the window, nothing to decide
			g.mu.Unlock()
			return nil
		}
		st = &gapState{}
		g.states[t.Symbol] = st
	}
	ref := g.refs[t.Symbol]
	g.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if off <= g.cfg.DecisionAt {
		st.last = t.Price
		if t.Price > st.high {
			st.high = t.Price
		} else if st.high > 0 && t.Price < st.high*(1-g.cfg.FakeoutPullbackPct) {
			st.fakeout = true
		}
	}

	if off < g.cfg.DecisionAt || st.decided {
		return nil
	}
	st.decided = true

	if ref <= 0 || st.fakeout || st.last <= ref*(1+g.cfg.GapStrengthPct) {
		return nil
	}
	return &Candidate{
		Strategy:    market.StrategyGap,
		Style:       market.OrderMarket,
		Tick:        market.Tick{Symbol: t.Symbol, Price: st.last, Size: t.Size, Ts: t.Ts},
		StopLoss:    st.last * (1 - g.cfg.StopLossPct),
		VolumeRatio: 1.0,
	}
}
