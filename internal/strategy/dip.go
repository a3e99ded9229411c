package strategy

import (
	"sync"
	"time"

	"daybot-go/internal/market"
)

// DipConfig tunes the intraday dip reversal strategy.
type DipConfig struct {
	ActiveStart           time.Duration
	ActiveEnd             time.Duration
	DipThresholdPct       float64
	VolumeSpikeMultiplier float64
	LookbackBars          int
	StopLossPct           float64
}

func (c DipConfig) withDefaults() DipConfig {
	if c.ActiveStart <= 0 {
		c.ActiveStart = MustClock("09:30")
	}
	if c.ActiveEnd <= 0 {
		c.ActiveEnd = MustClock("15:00")
	}
	if c.DipThresholdPct <= 0 {
		c.DipThresholdPct = 0.01
	}
	if c.VolumeSpikeMultiplier <= 0 {
		c.VolumeSpikeMultiplier = 2.0
	}
	if c.LookbackBars <= 0 {
		c.LookbackBars = 5
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.01
	}
	return c
}

// dipState holds one symbol's running VWAP sums, the bounded recent-volume
// history, and the spike/dip flags. The spike flag reflects only the most
// recently evaluated bar; the dip flag is sticky until consumed by a reversal.
type dipState struct {
	mu           sync.Mutex
	cumPV        float64
	cumVol       float64
	volumes      []float64
	spike        bool
	spikeRatio   float64
	dipConfirmed bool
	prevPrice    float64
}

type dipStrategy struct {
	cfg DipConfig
	loc *time.Location

	mu     sync.Mutex
	states map[string]*dipState
}

func newDipStrategy(cfg DipConfig, loc *time.Location) *dipStrategy {
	return &dipStrategy{
		cfg:    cfg.withDefaults(),
		loc:    loc,
		states: make(map[string]*dipState),
	}
}

func (s *dipStrategy) state(symbol string) *dipState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[symbol]
	if st == nil {
		st = &dipState{}
		s.states[symbol] = st
	}
	return st
}

func (s *dipStrategy) reset(symbol string) {
	s.mu.Lock()
	delete(s.states, symbol)
	s.mu.Unlock()
}

// onBar evaluates the volume spike against the bars preceding this one, then
// folds the bar into the VWAP sums and the bounded history. The spike flag is
// overwritten on every evaluated bar, never accumulated.
func (s *dipStrategy) onBar(b market.Bar) {
	st := s.state(b.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.volumes) >= s.cfg.LookbackBars {
		recent := st.volumes[len(st.volumes)-s.cfg.LookbackBars:]
		var sum float64
		for _, v := range recent {
			sum += v
		}
		if avg := sum / float64(len(recent)); avg > 0 {
			ratio := b.Volume / avg
			st.spike = ratio >= s.cfg.VolumeSpikeMultiplier
			st.spikeRatio = ratio
		}
	}
	st.volumes = append(st.volumes, b.Volume)
	if len(st.volumes) > s.cfg.LookbackBars {
		st.volumes = st.volumes[len(st.volumes)-s.cfg.LookbackBars:]
	}

	st.cumPV += b.TypicalPrice() * b.Volume
	st.cumVol += b.Volume
}

// onTick latches dip confirmation when price trades below the VWAP threshold
// while a spike is flagged, and emits on the first strictly higher tick after
// that. Emission clears both flags so the same swing cannot retrigger.
func (s *dipStrategy) onTick(t market.Tick) *Candidate {
	off := clockOffset(t.Ts, s.loc)
	if off < s.cfg.ActiveStart || off > s.cfg.ActiveEnd {
		return nil
	}

	st := s.state(t.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.cumVol <= 0 {
		st.prevPrice = t.Price
		return nil
	}
	vwap := st.cumPV / st.cumVol
	if vwap <= 0 {
		st.prevPrice = t.Price
		return nil
	}

	if t.Price < vwap*(1-s.cfg.DipThresholdPct) && st.spike {
		st.dipConfirmed = true
	}

	var out *Candidate
	if st.dipConfirmed && st.prevPrice > 0 && t.Price > st.prevPrice {
		out = &Candidate{
			Strategy:    market.StrategyDip,
			Style:       market.OrderLimit,
			Tick:        t,
			StopLoss:    t.Price * (1 - s.cfg.StopLossPct),
			VolumeRatio: st.spikeRatio,
		}
		st.dipConfirmed = false
		st.spike = false
	}
	st.prevPrice = t.Price
	return out
}

// vwap exposes the current running VWAP for one symbol, zero before any volume.
func (s *dipStrategy) vwap(symbol string) float64 {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cumVol <= 0 {
		return 0
	}
	return st.cumPV / st.cumVol
}
