// Package market standardizes payloads shared between the stream, strategy, and risk layers.
package market

import "time"

// Tick models a single observed trade print for one symbol.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Ts     time.Time
}

// Bar summarizes one symbol over a fixed time bucket (one minute assumed).
type Bar struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	End    time.Time // bucket end time
}

// TypicalPrice returns (high+low+close)/3, the price used for VWAP accumulation.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Strategy identifies which state machine produced a candidate.
type Strategy string

const (
	// StrategyGap is the pre-market gap breakout strategy.
	StrategyGap Strategy = "gap"
	// StrategyDip is the intraday dip reversal strategy.
	StrategyDip Strategy = "dip"
)

// OrderStyle distinguishes market from limit entries.
type OrderStyle string

const (
	OrderMarket OrderStyle = "market"
	OrderLimit  OrderStyle = "limit"
)

// Signal is a released trade candidate. Constructed only by the risk gate on
// acceptance; immutable afterwards.
type Signal struct {
	ID          string
	Strategy    Strategy
	Style       OrderStyle
	Symbol      string
	Entry       float64
	StopLoss    float64
	VolumeRatio float64 // spike ratio for dip, fixed 1.0 for gap
	Qty         int
	Ts          time.Time
}

// RejectReason enumerates terminal risk-gate outcomes that block a candidate.
type RejectReason string

const (
	// RejectMaxTrades means the daily trade count limit is exhausted.
	RejectMaxTrades RejectReason = "max_trades_exceeded"
	// RejectMaxDailyLoss means the daily realized loss limit is exhausted.
	RejectMaxDailyLoss RejectReason = "max_daily_loss_exceeded"
	// RejectInvalidRisk means the stop/entry relation or computed size is nonsensical.
	RejectInvalidRisk RejectReason = "invalid_risk"
)

// Rejection records why a candidate was refused. Delivered as data, never as an error.
type Rejection struct {
	Reason   RejectReason
	Strategy Strategy
	Symbol   string
	Ts       time.Time
}
