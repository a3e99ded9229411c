// Package stream hosts the venue protocol client: transport lifecycle,
// authentication, subscription bookkeeping, and the bounded tick/bar streams.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"daybot-go/internal/market"
	"daybot-go/internal/metrics"
)

var (
	// ErrMissingAPIKey is returned by Start when no credential is configured.
	ErrMissingAPIKey = errors.New("stream: missing api key")
	// ErrAuthRejected is returned by Start when the venue explicitly refuses the credential.
	ErrAuthRejected = errors.New("stream: venue rejected credentials")
	// ErrRetriesExhausted is returned when the configured attempt cap is reached.
	ErrRetriesExhausted = errors.New("stream: connect retries exhausted")

	errNotConnected = errors.New("stream: not connected")
)

const writeTimeout = 5 * time.Second

// Config carries the venue connection parameters. Zero values fall back to
// sensible defaults; MaxRetries 0 means unlimited.
type Config struct {
	URL             string
	APIKey          string
	QueueSize       int
	SubscriptionCap int
	AuthTimeout     time.Duration
	PingInterval    time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	GracePeriod     time.Duration
	MaxRetries      int
	OutboundRate    rate.Limit
	OutboundBurst   int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.SubscriptionCap <= 0 {
		c.SubscriptionCap = 50
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.OutboundRate <= 0 {
		c.OutboundRate = 10
	}
	if c.OutboundBurst <= 0 {
		c.OutboundBurst = 5
	}
	return c
}

type subKey struct {
	Symbol  string
	Channel string
}

// Client maintains a live connection to the market-data venue and delivers two
// ordered, bounded, best-effort streams of ticks and bars, transparently
// surviving disconnects.
type Client struct {
	cfg Config
	log zerolog.Logger

	ticks *Queue[market.Tick]
	bars  *Queue[market.Bar]

	onTick []func(market.Tick)
	onBar  []func(market.Bar)

	limiter *rate.Limiter

	// intents is the durable source of truth for what should be subscribed;
	// confirmed caches venue-assigned ids and is rebuilt after every reconnect.
	subMu     sync.Mutex
	intents   map[string]map[string]struct{}
	confirmed map[subKey]string

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	connected atomic.Bool
	lastFrame atomic.Int64

	lifeMu  sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewClient builds a client; handlers must be registered with OnTick/OnBar
// before Start.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		log: log,
		ticks: NewQueue[market.Tick](cfg.QueueSize, func() {
			metrics.QueueDroppedTotal.WithLabelValues("ticks").Inc()
		}),
		bars: NewQueue[market.Bar](cfg.QueueSize, func() {
			metrics.QueueDroppedTotal.WithLabelValues("bars").Inc()
		}),
		limiter:   rate.NewLimiter(cfg.OutboundRate, cfg.OutboundBurst),
		intents:   make(map[string]map[string]struct{}),
		confirmed: make(map[subKey]string),
	}
}

// OnTick registers a tick handler invoked from the tick dispatch loop. Not
// safe to call after Start.
func (c *Client) OnTick(fn func(market.Tick)) {
	c.onTick = append(c.onTick, fn)
}

// OnBar registers a bar handler invoked from the bar dispatch loop. Not safe
// to call after Start.
func (c *Client) OnBar(fn func(market.Bar)) {
	c.onBar = append(c.onBar, fn)
}

// Start opens the transport, authenticates, and launches the receive,
// dispatch, and heartbeat loops. Idempotent; returns once the initial
// connection is up, or an error after retry exhaustion. A missing credential
// or an explicit venue rejection fails fast.
func (c *Client) Start(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ErrMissingAPIKey
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.lifeMu.Lock()
	if c.started {
		c.lifeMu.Unlock()
		cancel()
		return nil
	}
	// started and cancel change together: Stop never sees one without the other
	c.started = true
	c.cancel = cancel
	c.lifeMu.Unlock()

	conn, err := c.connect(runCtx, true)
	if err != nil {
		cancel()
		c.lifeMu.Lock()
		c.started = false
		c.lifeMu.Unlock()
		return err
	}
	c.setConn(conn)
	c.connected.Store(true)

	c.wg.Add(4)
	go c.receiveLoop(runCtx)
	go c.dispatchTicks()
	go c.dispatchBars()
	go c.heartbeatLoop(runCtx)

	// intents recorded before Start go out on the first connection too
	c.replaySubscriptions()

	c.log.Info().Str("url", c.cfg.URL).Msg("venue stream connected")
	return nil
}

// Stop cancels all loops, lets the queues drain, and force-closes the
// transport once the grace period elapses. Safe to call when never started.
func (c *Client) Stop() {
	c.lifeMu.Lock()
	if !c.started {
		c.lifeMu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	c.lifeMu.Unlock()

	cancel()
	c.closeConn() // unblocks the pending read

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.GracePeriod):
		c.log.Warn().Msg("grace period elapsed, forcing transport closed")
	}
	c.closeConn()
	c.connected.Store(false)
	c.log.Info().Msg("venue stream stopped")
}

// IsConnected reports the current transport state, best effort.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// LastActivity returns the arrival time of the most recent inbound frame.
func (c *Client) LastActivity() time.Time {
	ns := c.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Subscribe tracks the mode's channels for the symbol and sends a subscribe
// request for each channel not already tracked. Requests beyond the
// subscription cap are dropped with a warning, never an error.
func (c *Client) Subscribe(symbol string, mode Mode) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return
	}
	for _, channel := range mode.Channels() {
		c.subMu.Lock()
		set := c.intents[symbol]
		if set == nil {
			set = make(map[string]struct{})
			c.intents[symbol] = set
		}
		if _, tracked := set[channel]; tracked {
			c.subMu.Unlock()
			continue
		}
		if c.totalIntentsLocked() >= c.cfg.SubscriptionCap {
			if len(set) == 0 {
				delete(c.intents, symbol)
			}
			c.subMu.Unlock()
			c.log.Warn().Str("symbol", symbol).Str("channel", channel).
				Int("cap", c.cfg.SubscriptionCap).Msg("subscription cap reached, request dropped")
			continue
		}
		set[channel] = struct{}{}
		c.subMu.Unlock()

		if c.connected.Load() {
			c.sendControl(outFrame{Event: eventSubscribe, Data: subscribeData{Channel: channel, Symbol: symbol}})
		}
	}
}

// Unsubscribe drops all tracked channels for the symbol, sending one
// unsubscribe per confirmed id. Pending channels are simply forgotten.
func (c *Client) Unsubscribe(symbol string) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return
	}
	c.subMu.Lock()
	channels := c.intents[symbol]
	delete(c.intents, symbol)
	ids := make([]string, 0, len(channels))
	for channel := range channels {
		key := subKey{symbol, channel}
		if id, ok := c.confirmed[key]; ok {
			ids = append(ids, id)
			delete(c.confirmed, key)
		}
	}
	c.subMu.Unlock()

	for _, id := range ids {
		c.sendControl(outFrame{Event: eventUnsubscribe, Data: unsubscribeData{ID: id}})
	}
}

func (c *Client) totalIntentsLocked() int {
	total := 0
	for _, set := range c.intents {
		total += len(set)
	}
	return total
}

// connect dials and authenticates with backoff until it succeeds, the context
// is canceled, or the attempt cap is hit. On the initial connection an
// explicit credential rejection is fatal; during reconnects the full cycle
// retries the handshake too.
func (c *Client) connect(ctx context.Context, initial bool) (*websocket.Conn, error) {
	backoff := c.cfg.BackoffBase
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := c.dial(ctx)
		if err == nil {
			if err = c.authenticate(conn); err == nil {
				return conn, nil
			}
			_ = conn.Close()
			if initial && errors.Is(err, ErrAuthRejected) {
				return nil, err
			}
		}
		attempt++
		if c.cfg.MaxRetries > 0 && attempt >= c.cfg.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err)
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("venue connect failed, retrying")
		if !sleepCtx(ctx, jitter(backoff)) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff, c.cfg.BackoffMax)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial venue: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// authenticate sends the credential and blocks for the venue acknowledgement
// up to the configured timeout. Frames other than the ack (heartbeats) are
// skipped while waiting.
func (c *Client) authenticate(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(outFrame{Event: eventAuth, Data: authData{APIKey: c.cfg.APIKey}}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("await auth ack: %w", err)
		}
		switch f.Event {
		case eventAuthenticated:
			return nil
		case eventError:
			var p errorPayload
			_ = json.Unmarshal(f.Data, &p)
			if p.Message != "" {
				return fmt.Errorf("%w: %s", ErrAuthRejected, p.Message)
			}
			return ErrAuthRejected
		}
	}
}

// receiveLoop is the sole producer for both queues and the only place a
// reconnect is triggered reactively. A server close frame and a socket error
// take the same path.
func (c *Client) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.ticks.Close()
	defer c.bars.Close()

	for {
		conn := c.currentConn()
		if conn == nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.readWait()))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.connected.Store(false)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("venue stream interrupted, reconnecting")
			next, cerr := c.connect(ctx, false)
			if cerr != nil {
				if ctx.Err() == nil {
					c.log.Error().Err(cerr).Msg("reconnect abandoned")
				}
				return
			}
			c.setConn(next)
			c.connected.Store(true)
			metrics.ReconnectsTotal.Inc()
			c.replaySubscriptions()
			continue
		}
		c.lastFrame.Store(time.Now().UnixNano())
		c.handleFrame(msg)
	}
}

// replaySubscriptions invalidates every confirmed id and sends the full
// intent table. Runs on every successful connection: the initial one picks up
// intents recorded before Start, and a reconnect re-establishes everything
// because old ids are meaningless to the venue.
func (c *Client) replaySubscriptions() {
	c.subMu.Lock()
	c.confirmed = make(map[subKey]string)
	replay := make([]subscribeData, 0, len(c.intents))
	for symbol, set := range c.intents {
		for channel := range set {
			replay = append(replay, subscribeData{Channel: channel, Symbol: symbol})
		}
	}
	c.subMu.Unlock()

	for _, sub := range replay {
		c.sendControl(outFrame{Event: eventSubscribe, Data: sub})
	}
	if len(replay) > 0 {
		c.log.Info().Int("count", len(replay)).Msg("subscription intents replayed")
	}
}

// handleFrame routes one inbound frame. Malformed input never escapes the
// receive loop; it is counted and skipped.
func (c *Client) handleFrame(msg []byte) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		metrics.ParseFailuresTotal.Inc()
		c.log.Warn().Err(err).Msg("malformed venue frame")
		return
	}
	metrics.FramesTotal.WithLabelValues(f.Event).Inc()
	switch f.Event {
	case eventAuthenticated:
		c.log.Info().Msg("venue authenticated")
	case eventSubscribed:
		var ack subscribedAck
		if err := json.Unmarshal(f.Data, &ack); err != nil {
			metrics.ParseFailuresTotal.Inc()
			c.log.Warn().Err(err).Msg("bad subscribe ack")
			return
		}
		c.subMu.Lock()
		c.confirmed[subKey{ack.Symbol, ack.Channel}] = ack.ID
		c.subMu.Unlock()
		c.log.Debug().Str("symbol", ack.Symbol).Str("channel", ack.Channel).Str("id", ack.ID).Msg("subscription confirmed")
	case eventUnsubscribed:
		c.log.Debug().Msg("venue unsubscribed")
	case eventPing, eventPong, eventHeartbeat:
		// liveness only
	case eventError:
		var p errorPayload
		_ = json.Unmarshal(f.Data, &p)
		c.log.Warn().Str("message", p.Message).Msg("venue error event")
	case eventData:
		c.handleData(f.Channel, f.Data)
	default:
		metrics.ParseFailuresTotal.Inc()
		c.log.Warn().Str("event", f.Event).Msg("unrecognized venue event")
	}
}

func (c *Client) handleData(channel string, data json.RawMessage) {
	switch channel {
	case ChannelTrades:
		var p tradePayload
		if err := json.Unmarshal(data, &p); err != nil {
			metrics.ParseFailuresTotal.Inc()
			c.log.Warn().Err(err).Msg("bad trade payload")
			return
		}
		c.pushTick(p.tick())
	case ChannelCandles:
		var p candlePayload
		if err := json.Unmarshal(data, &p); err != nil {
			metrics.ParseFailuresTotal.Inc()
			c.log.Warn().Err(err).Msg("bad candle payload")
			return
		}
		b := p.bar()
		c.bars.Push(b)
		metrics.BarsTotal.WithLabelValues(b.Symbol).Inc()
	case ChannelBook:
		var p bookPayload
		if err := json.Unmarshal(data, &p); err != nil {
			metrics.ParseFailuresTotal.Inc()
			c.log.Warn().Err(err).Msg("bad book payload")
			return
		}
		if t, ok := p.tick(); ok {
			c.pushTick(t)
		}
	case ChannelAggregates:
		var p aggregatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			metrics.ParseFailuresTotal.Inc()
			c.log.Warn().Err(err).Msg("bad aggregate payload")
			return
		}
		c.pushTick(p.tick())
	default:
		metrics.ParseFailuresTotal.Inc()
		c.log.Warn().Str("channel", channel).Msg("data frame for unknown channel")
	}
}

func (c *Client) pushTick(t market.Tick) {
	c.ticks.Push(t)
	metrics.TicksTotal.WithLabelValues(t.Symbol).Inc()
}

func (c *Client) dispatchTicks() {
	defer c.wg.Done()
	for t := range c.ticks.Out() {
		for _, fn := range c.onTick {
			invoke(c.log, "tick", func() { fn(t) })
		}
	}
}

func (c *Client) dispatchBars() {
	defer c.wg.Done()
	for b := range c.bars.Out() {
		for _, fn := range c.onBar {
			invoke(c.log, "bar", func() { fn(b) })
		}
	}
}

// invoke isolates one handler call: a panicking subscriber never stops a
// dispatch loop or affects its peers.
func invoke(log zerolog.Logger, kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("kind", kind).Msg("subscriber callback panicked")
		}
	}()
	fn()
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				continue
			}
			if err := c.writeFrame(outFrame{Event: eventPing}); err != nil {
				c.log.Warn().Err(err).Msg("heartbeat failed") // retried next cycle
			}
		}
	}
}

// sendControl paces and writes one control frame. Failures are logged, not
// surfaced: the intent table plus reconnect replay make them eventually moot.
func (c *Client) sendControl(f outFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Warn().Err(err).Str("event", f.Event).Msg("outbound pacing timed out")
		return
	}
	if err := c.writeFrame(f); err != nil {
		c.log.Warn().Err(err).Str("event", f.Event).Msg("outbound frame failed")
	}
}

func (c *Client) writeFrame(f outFrame) error {
	conn := c.currentConn()
	if conn == nil {
		return errNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *Client) readWait() time.Duration {
	return 2 * c.cfg.PingInterval
}

func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

func nextBackoff(d, max time.Duration) time.Duration {
	d = time.Duration(float64(d) * 1.8)
	if d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
