package stream

import (
	"encoding/json"
	"time"

	"daybot-go/internal/market"
)

// Channel names the venue understands.
const (
	ChannelTrades     = "trades"
	ChannelCandles    = "candles"
	ChannelBook       = "book"
	ChannelAggregates = "aggregates"
)

// Outbound event names.
const (
	eventAuth        = "auth"
	eventSubscribe   = "subscribe"
	eventUnsubscribe = "unsubscribe"
)

// Inbound event names.
const (
	eventAuthenticated = "authenticated"
	eventSubscribed    = "subscribed"
	eventUnsubscribed  = "unsubscribed"
	eventData          = "data"
	eventPing          = "ping"
	eventPong          = "pong"
	eventHeartbeat     = "heartbeat"
	eventError         = "error"
)

// Mode selects which channel set a subscription covers.
type Mode string

const (
	// ModeSimulate subscribes aggregate snapshots plus raw trades.
	ModeSimulate Mode = "simulate"
	// ModeRealtime subscribes raw trades plus one-minute candles.
	ModeRealtime Mode = "realtime"
)

// Channels maps the mode to its venue channel names.
func (m Mode) Channels() []string {
	switch m {
	case ModeSimulate:
		return []string{ChannelAggregates, ChannelTrades}
	case ModeRealtime:
		return []string{ChannelTrades, ChannelCandles}
	default:
		return []string{ChannelTrades}
	}
}

// frame is the envelope every venue message travels in, both directions.
// Inbound data frames name their channel beside the event; subscription acks
// carry it inside data.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type authData struct {
	APIKey string `json:"apikey"`
}

type subscribeData struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

type unsubscribeData struct {
	ID string `json:"id"`
}

type subscribedAck struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type tradePayload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	Time   int64   `json:"time"` // microseconds since epoch
}

type candlePayload struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"` // ISO-8601
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type bookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type bookPayload struct {
	Symbol string      `json:"symbol"`
	Bids   []bookLevel `json:"bids"`
	Asks   []bookLevel `json:"asks"`
	Time   int64       `json:"time"` // microseconds since epoch
}

type aggregatePayload struct {
	Symbol      string      `json:"symbol"`
	LastPrice   float64     `json:"lastPrice"`
	LastSize    float64     `json:"lastSize"`
	LastUpdated int64       `json:"lastUpdated"` // microseconds since epoch
	Bids        []bookLevel `json:"bids"`
	Asks        []bookLevel `json:"asks"`
}

// microTime converts a venue microsecond timestamp, truncated to millisecond
// precision the way the venue documents it.
func microTime(us int64) time.Time {
	return time.UnixMicro(us).Truncate(time.Millisecond)
}

// candleTime parses the ISO-8601 candle timestamp, falling back to now when
// the venue sends something unparsable.
func candleTime(s string) time.Time {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	return time.Now()
}

func (p tradePayload) tick() market.Tick {
	return market.Tick{Symbol: p.Symbol, Price: p.Price, Size: p.Size, Ts: microTime(p.Time)}
}

func (p candlePayload) bar() market.Bar {
	return market.Bar{
		Symbol: p.Symbol,
		Open:   p.Open,
		High:   p.High,
		Low:    p.Low,
		Close:  p.Close,
		Volume: p.Volume,
		End:    candleTime(p.Date),
	}
}

// tick synthesizes a mid-price tick from top of book. An empty side suppresses
// emission: no default price is invented.
func (p bookPayload) tick() (market.Tick, bool) {
	if len(p.Bids) == 0 || len(p.Asks) == 0 {
		return market.Tick{}, false
	}
	mid := (p.Bids[0].Price + p.Asks[0].Price) / 2
	return market.Tick{Symbol: p.Symbol, Price: mid, Ts: microTime(p.Time)}, true
}

func (p aggregatePayload) tick() market.Tick {
	return market.Tick{Symbol: p.Symbol, Price: p.LastPrice, Size: p.LastSize, Ts: microTime(p.LastUpdated)}
}
