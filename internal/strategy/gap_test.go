package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybot-go/internal/market"
)

var testDay = time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)

func tickAt(symbol string, price float64, clock string) market.Tick {
	return market.Tick{Symbol: symbol, Price: price, Size: 100, Ts: testDay.Add(MustClock(clock))}
}

func newGapEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(
		GapConfig{
			MonitorStart:       MustClock("09:00"),
			DecisionAt:         MustClock("09:30"),
			GapStrengthPct:     0.02,
			FakeoutPullbackPct: 0.01,
			StopLossPct:        0.02,
		},
		// park the dip window in the afternoon so it stays quiet here
		DipConfig{ActiveStart: MustClock("13:00"), ActiveEnd: MustClock("15:00")},
	)
	require.NoError(t, e.SetReferencePrice("AAPL", 100))
	return e
}

func gapCandidates(e *Engine, ticks ...market.Tick) []Candidate {
	var out []Candidate
	for _, tk := range ticks {
		for _, c := range e.ProcessTick(tk) {
			if c.Strategy == market.StrategyGap {
				out = append(out, c)
			}
		}
	}
	return out
}

func TestGapEmitsOnceAtDecision(t *testing.T) {
	e := newGapEngine(t)

	got := gapCandidates(e,
		tickAt("AAPL", 101.0, "09:05"),
		tickAt("AAPL", 102.5, "09:15"),
		tickAt("AAPL", 103.5, "09:30"), // decision instant
	)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, market.OrderMarket, c.Style)
	assert.Equal(t, 103.5, c.Tick.Price)
	assert.InDelta(t, 103.5*0.98, c.StopLoss, 1e-9)
	assert.Equal(t, 1.0, c.VolumeRatio)

	// the decision is one-shot no matter how many ticks follow
	again := gapCandidates(e,
		tickAt("AAPL", 110, "09:31"),
		tickAt("AAPL", 120, "09:45"),
	)
	assert.Empty(t, again)
}

func TestGapRequiresStrength(t *testing.T) {
	e := newGapEngine(t)
	// 101.5 <= 100 * 1.02: not strong enough
	got := gapCandidates(e,
		tickAt("AAPL", 101.0, "09:10"),
		tickAt("AAPL", 101.5, "09:30"),
	)
	assert.Empty(t, got)
}

func TestGapFakeoutIsSticky(t *testing.T) {
	e := newGapEngine(t)
	got := gapCandidates(e,
		tickAt("AAPL", 105.0, "09:10"),
		tickAt("AAPL", 103.0, "09:15"), // >1% pullback from 105 sets the flag
		tickAt("AAPL", 106.0, "09:25"), // recovery does not heal it
		tickAt("AAPL", 106.5, "09:30"),
	)
	assert.Empty(t, got, "fakeout must suppress the decision even after recovery")
}

func TestGapWithoutReferenceNeverFires(t *testing.T) {
	e := newGapEngine(t)
	got := gapCandidates(e,
		tickAt("MSFT", 500, "09:10"),
		tickAt("MSFT", 600, "09:30"),
	)
	assert.Empty(t, got)
}

func TestGapIgnoresTicksBeforeWindow(t *testing.T) {
	e := newGapEngine(t)
	// pre-window spike then pullback would be a fakeout if tracked
	got := gapCandidates(e,
		tickAt("AAPL", 120.0, "08:30"),
		tickAt("AAPL", 101.0, "08:45"),
		tickAt("AAPL", 103.0, "09:10"),
		tickAt("AAPL", 103.2, "09:30"),
	)
	require.Len(t, got, 1)
}

func TestGapSymbolNeverSeenInWindow(t *testing.T) {
	e := newGapEngine(t)
	// first tick arrives after the decision instant: nothing to decide
	got := gapCandidates(e, tickAt("AAPL", 150, "10:15"))
	assert.Empty(t, got)
}

func TestGapResetSymbolAllowsFreshDecision(t *testing.T) {
	e := newGapEngine(t)
	first := gapCandidates(e, tickAt("AAPL", 103.5, "09:30"))
	require.Len(t, first, 1)

	e.ResetSymbol("AAPL")
	second := gapCandidates(e,
		tickAt("AAPL", 104.0, "09:20"),
		tickAt("AAPL", 104.5, "09:30"),
	)
	require.Len(t, second, 1)
}

func TestSetReferencePriceBlankSymbol(t *testing.T) {
	e := newGapEngine(t)
	assert.ErrorIs(t, e.SetReferencePrice("  ", 100), ErrBlankSymbol)
}
