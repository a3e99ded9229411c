package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybot-go/internal/market"
)

func newDipEngine() *Engine {
	return NewEngine(
		// park the gap window pre-dawn so it stays quiet here
		GapConfig{MonitorStart: MustClock("04:00"), DecisionAt: MustClock("04:30")},
		DipConfig{
			ActiveStart:           MustClock("09:30"),
			ActiveEnd:             MustClock("15:00"),
			DipThresholdPct:       0.01,
			VolumeSpikeMultiplier: 2.0,
			LookbackBars:          3,
			StopLossPct:           0.01,
		},
	)
}

func flatBar(symbol string, price, volume float64, clock string) market.Bar {
	return market.Bar{
		Symbol: symbol, Open: price, High: price, Low: price, Close: price,
		Volume: volume, End: testDay.Add(MustClock(clock)),
	}
}

func dipCandidates(e *Engine, ticks ...market.Tick) []Candidate {
	var out []Candidate
	for _, tk := range ticks {
		for _, c := range e.ProcessTick(tk) {
			if c.Strategy == market.StrategyDip {
				out = append(out, c)
			}
		}
	}
	return out
}

func seedQuietBars(e *Engine, symbol string) {
	for _, clock := range []string{"09:31", "09:32", "09:33"} {
		e.ProcessBar(flatBar(symbol, 100, 1000, clock))
	}
}

func TestVWAPIncrementalMatchesRecompute(t *testing.T) {
	e := newDipEngine()
	bars := []market.Bar{
		{Symbol: "AAPL", Open: 10, High: 12, Low: 8, Close: 10, Volume: 100},
		{Symbol: "AAPL", Open: 11, High: 13, Low: 9, Close: 11, Volume: 250},
		{Symbol: "AAPL", Open: 12, High: 14, Low: 11, Close: 13, Volume: 50},
		{Symbol: "AAPL", Open: 13, High: 13.5, Low: 12, Close: 12.5, Volume: 900},
	}
	var sumPV, sumV float64
	for i, b := range bars {
		b.End = testDay.Add(MustClock("09:31")).Add(time.Duration(i) * time.Minute)
		e.ProcessBar(b)
		sumPV += b.TypicalPrice() * b.Volume
		sumV += b.Volume
		require.InEpsilon(t, sumPV/sumV, e.VWAP("AAPL"), 1e-12, "bar %d", i)
	}
}

func TestVWAPZeroBeforeVolume(t *testing.T) {
	e := newDipEngine()
	assert.Zero(t, e.VWAP("AAPL"))
}

func TestVolumeSpikeBelowMultiplierNeverConfirms(t *testing.T) {
	e := newDipEngine()
	seedQuietBars(e, "AAPL")
	// ratio 1.5 < 2.0: no spike, so the dip cannot confirm
	e.ProcessBar(flatBar("AAPL", 100, 1500, "09:34"))

	got := dipCandidates(e,
		tickAt("AAPL", 98.9, "09:40"),
		tickAt("AAPL", 99.2, "09:41"),
	)
	assert.Empty(t, got)
}

func TestDipFullCycleEmitsThenResets(t *testing.T) {
	e := newDipEngine()
	seedQuietBars(e, "AAPL")
	// 2500 / avg(1000,1000,1000) = 2.5 >= 2.0
	e.ProcessBar(flatBar("AAPL", 100, 2500, "09:34"))

	got := dipCandidates(e,
		tickAt("AAPL", 98.9, "09:40"), // below VWAP 100 * 0.99, spike set: dip confirmed
		tickAt("AAPL", 99.2, "09:41"), // strictly higher: reversal
	)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, market.OrderLimit, c.Style)
	assert.Equal(t, 99.2, c.Tick.Price)
	assert.InDelta(t, 99.2*0.99, c.StopLoss, 1e-9)
	assert.InDelta(t, 2.5, c.VolumeRatio, 1e-9)

	// identical swing without a fresh spike must not re-emit
	again := dipCandidates(e,
		tickAt("AAPL", 98.9, "09:45"),
		tickAt("AAPL", 99.2, "09:46"),
	)
	assert.Empty(t, again)
}

func TestDipSpikeFlagOverwrittenByNextBar(t *testing.T) {
	e := newDipEngine()
	seedQuietBars(e, "AAPL")
	e.ProcessBar(flatBar("AAPL", 100, 2500, "09:34")) // spike
	// next bar is quiet, overwriting (losing) the unconsumed spike
	e.ProcessBar(flatBar("AAPL", 100, 1100, "09:35"))

	got := dipCandidates(e,
		tickAt("AAPL", 98.5, "09:40"),
		tickAt("AAPL", 99.0, "09:41"),
	)
	assert.Empty(t, got, "a spike not consumed before the next quiet bar is lost")
}

func TestDipLatchSurvivesQuietBar(t *testing.T) {
	e := newDipEngine()
	seedQuietBars(e, "AAPL")
	e.ProcessBar(flatBar("AAPL", 100, 2500, "09:34"))

	confirm := dipCandidates(e, tickAt("AAPL", 98.9, "09:35")) // latches dip-confirmed
	require.Empty(t, confirm)

	// the quiet bar clears the spike flag but not the latched confirmation
	e.ProcessBar(flatBar("AAPL", 99, 1000, "09:36"))
	got := dipCandidates(e, tickAt("AAPL", 99.2, "09:40"))
	require.Len(t, got, 1)
	// the ratio reflects the most recently evaluated bar, not the spike
	assert.InDelta(t, 1000.0/1500.0, got[0].VolumeRatio, 1e-9)
}

func TestDipNeedsPositiveVWAPFirst(t *testing.T) {
	e := newDipEngine()
	// no bars yet: ticks only remember the price
	got := dipCandidates(e,
		tickAt("AAPL", 98.0, "09:40"),
		tickAt("AAPL", 99.0, "09:41"),
	)
	assert.Empty(t, got)
}

func TestDipIgnoresTicksOutsideActiveWindow(t *testing.T) {
	e := newDipEngine()
	seedQuietBars(e, "AAPL")
	e.ProcessBar(flatBar("AAPL", 100, 2500, "09:34"))

	got := dipCandidates(e,
		tickAt("AAPL", 98.9, "15:30"),
		tickAt("AAPL", 99.2, "15:31"),
	)
	assert.Empty(t, got)
}

func TestProcessBarBlankSymbolIgnored(t *testing.T) {
	e := newDipEngine()
	e.ProcessBar(market.Bar{Symbol: "  ", Volume: 100})
	assert.Zero(t, e.VWAP("  "))
}

func TestProcessTickBlankSymbolIgnored(t *testing.T) {
	e := newDipEngine()
	assert.Nil(t, e.ProcessTick(market.Tick{Symbol: "", Price: 100, Ts: testDay.Add(MustClock("10:00"))}))
}
