// Command sim drives the engine with one deterministic synthetic session:
// a pre-market ramp that clears the gap decision, then an intraday volume
// spike, dip, and reversal. Useful for offline checks of the full data path
// without a venue connection.
package main

import (
	"time"

	"daybot-go/internal/engine"
	"daybot-go/internal/market"
	"daybot-go/internal/risk"
	"daybot-go/internal/strategy"
	"daybot-go/internal/util"
)

const symbol = "ACME"

func main() {
	log := util.NewLogger("debug")

	strategies := strategy.NewEngine(
		strategy.GapConfig{
			MonitorStart:   strategy.MustClock("09:00"),
			DecisionAt:     strategy.MustClock("09:30"),
			GapStrengthPct: 0.02,
		},
		strategy.DipConfig{
			ActiveStart:           strategy.MustClock("09:30"),
			ActiveEnd:             strategy.MustClock("15:00"),
			DipThresholdPct:       0.01,
			VolumeSpikeMultiplier: 2.0,
			LookbackBars:          3,
		},
	)
	gate := risk.NewGate(risk.Limits{MaxDailyTrades: 5, MaxDailyLoss: 500, RiskPerTrade: 200, MaxPositionSize: 500})
	eng := engine.New(log, strategies, gate)

	eng.OnSignal(func(sig market.Signal) {
		log.Info().Str("strategy", string(sig.Strategy)).Float64("entry", sig.Entry).
			Float64("stop", sig.StopLoss).Int("qty", sig.Qty).Msg("signal")
	})
	eng.OnRejection(func(rej market.Rejection) {
		log.Warn().Str("reason", string(rej.Reason)).Msg("rejected")
	})

	if err := eng.SetReferencePrice(symbol, 100); err != nil {
		log.Fatal().Err(err).Msg("set reference")
	}

	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	at := func(clock string) time.Time {
		return day.Add(strategy.MustClock(clock))
	}

	// pre-market ramp: steady climb, no pullback, decision tick at 09:30
	for i, px := range []float64{100.5, 101.2, 102.0, 102.8, 103.5} {
		eng.ProcessTick(market.Tick{Symbol: symbol, Price: px, Size: 50, Ts: at("09:05").Add(time.Duration(i) * 4 * time.Minute)})
	}
	eng.ProcessTick(market.Tick{Symbol: symbol, Price: 103.6, Size: 50, Ts: at("09:30")})

	// quiet bars seed the VWAP and volume history, then a spike bar
	for i, vol := range []float64{1000, 1100, 900} {
		end := at("09:31").Add(time.Duration(i) * time.Minute)
		eng.ProcessBar(market.Bar{Symbol: symbol, Open: 103.5, High: 103.8, Low: 103.2, Close: 103.5, Volume: vol, End: end})
	}
	eng.ProcessBar(market.Bar{Symbol: symbol, Open: 103.4, High: 103.6, Low: 102.0, Close: 102.2, Volume: 3200, End: at("09:35")})

	// dip below the VWAP threshold, then the reversal tick
	eng.ProcessTick(market.Tick{Symbol: symbol, Price: 101.9, Size: 80, Ts: at("09:36")})
	eng.ProcessTick(market.Tick{Symbol: symbol, Price: 102.3, Size: 90, Ts: at("09:37")})

	status := eng.Gate().CurrentStatus()
	log.Info().Int("trades", status.TradeCount).Msg("session complete")
}
