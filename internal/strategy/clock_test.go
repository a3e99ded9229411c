package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	d, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+30*time.Minute, d)

	_, err = ParseClock("930")
	assert.Error(t, err)
	_, err = ParseClock("")
	assert.Error(t, err)
}

func TestClockOffsetUsesLocation(t *testing.T) {
	utc := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, 14*time.Hour+30*time.Minute, clockOffset(utc, nil))

	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, 9*time.Hour+30*time.Minute, clockOffset(utc, est))
}

func TestBothWindowsMayFireOnOneTick(t *testing.T) {
	// overlapping windows: a decision-instant tick can also feed the dip machine
	e := NewEngine(
		GapConfig{MonitorStart: MustClock("09:00"), DecisionAt: MustClock("10:00"), GapStrengthPct: 0.02},
		DipConfig{
			ActiveStart: MustClock("09:30"), ActiveEnd: MustClock("15:00"),
			DipThresholdPct: 0.01, VolumeSpikeMultiplier: 2.0, LookbackBars: 2,
		},
	)
	require.NoError(t, e.SetReferencePrice("AAPL", 100))

	e.ProcessBar(flatBar("AAPL", 110, 1000, "09:31"))
	e.ProcessBar(flatBar("AAPL", 110, 1000, "09:32"))
	e.ProcessBar(flatBar("AAPL", 110, 2500, "09:33")) // spike, VWAP 110

	e.ProcessTick(tickAt("AAPL", 105.0, "09:40")) // below threshold: dip confirmed
	got := e.ProcessTick(tickAt("AAPL", 106.0, "10:00"))

	require.Len(t, got, 2, "gap decision and dip reversal on the same tick")
	strategies := []string{string(got[0].Strategy), string(got[1].Strategy)}
	assert.ElementsMatch(t, []string{"gap", "dip"}, strategies)
}
