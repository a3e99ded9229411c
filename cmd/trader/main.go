package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"daybot-go/internal/config"
	"daybot-go/internal/engine"
	"daybot-go/internal/market"
	"daybot-go/internal/metrics"
	"daybot-go/internal/risk"
	"daybot-go/internal/strategy"
	"daybot-go/internal/stream"
	"daybot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := buildEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	eng.OnSignal(func(sig market.Signal) {
		log.Info().Str("id", sig.ID).Str("strategy", string(sig.Strategy)).Str("style", string(sig.Style)).
			Str("sym", sig.Symbol).Float64("entry", sig.Entry).Float64("stop", sig.StopLoss).
			Int("qty", sig.Qty).Float64("vol_ratio", sig.VolumeRatio).Msg("signal released")
	})
	eng.OnRejection(func(rej market.Rejection) {
		log.Warn().Str("reason", string(rej.Reason)).Str("strategy", string(rej.Strategy)).
			Str("sym", rej.Symbol).Msg("signal rejected")
	})

	client := stream.NewClient(stream.Config{
		URL:             cfg.Stream.URL,
		APIKey:          cfg.Stream.APIKey,
		QueueSize:       cfg.Stream.QueueSize,
		SubscriptionCap: cfg.Stream.SubscriptionCap,
		AuthTimeout:     cfg.Stream.AuthTimeout(),
		PingInterval:    cfg.Stream.PingInterval(),
		BackoffBase:     cfg.Stream.BackoffBase(),
		BackoffMax:      cfg.Stream.BackoffMax(),
		MaxRetries:      cfg.Stream.MaxRetries,
		OutboundRate:    rate.Limit(cfg.Stream.OutboundRate),
		OutboundBurst:   cfg.Stream.OutboundBurst,
	}, log)
	client.OnTick(eng.ProcessTick)
	client.OnBar(eng.ProcessBar)

	if err := client.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start stream")
	}

	mode := stream.Mode(cfg.Stream.Mode)
	for _, sym := range cfg.Stream.Symbols {
		client.Subscribe(sym, mode)
	}

	log.Info().Str("mode", string(mode)).Strs("symbols", cfg.Stream.Symbols).Msg("trading engine started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	client.Stop()
	status := eng.Gate().CurrentStatus()
	log.Info().Int("trades", status.TradeCount).Float64("realized_loss", status.RealizedLoss).Msg("session summary")
}

func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	gapCfg := strategy.GapConfig{
		GapStrengthPct:     cfg.Gap.GapStrengthPct,
		FakeoutPullbackPct: cfg.Gap.FakeoutPullbackPct,
		StopLossPct:        cfg.Gap.StopLossPct,
	}
	dipCfg := strategy.DipConfig{
		DipThresholdPct:       cfg.Dip.DipThresholdPct,
		VolumeSpikeMultiplier: cfg.Dip.VolumeSpikeMultiplier,
		LookbackBars:          cfg.Dip.LookbackBars,
		StopLossPct:           cfg.Dip.StopLossPct,
	}

	var err error
	if gapCfg.MonitorStart, err = clock(cfg.Gap.MonitorStart); err != nil {
		return nil, err
	}
	if gapCfg.DecisionAt, err = clock(cfg.Gap.DecisionTime); err != nil {
		return nil, err
	}
	if dipCfg.ActiveStart, err = clock(cfg.Dip.ActiveStart); err != nil {
		return nil, err
	}
	if dipCfg.ActiveEnd, err = clock(cfg.Dip.ActiveEnd); err != nil {
		return nil, err
	}

	var opts []strategy.Option
	if cfg.App.Timezone != "" {
		loc, err := time.LoadLocation(cfg.App.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
		opts = append(opts, strategy.WithLocation(loc))
	}

	strategies := strategy.NewEngine(gapCfg, dipCfg, opts...)
	for sym, ref := range cfg.Gap.ReferencePrices {
		if err := strategies.SetReferencePrice(sym, ref); err != nil {
			return nil, err
		}
	}

	gate := risk.NewGate(risk.Limits{
		MaxDailyTrades:  cfg.Risk.MaxDailyTrades,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
		RiskPerTrade:    cfg.Risk.RiskPerTrade,
		MaxPositionSize: cfg.Risk.MaxPositionSize,
	})
	return engine.New(util.NewLogger(cfg.App.LogLevel), strategies, gate), nil
}

// clock parses an optional "HH:MM" window bound; empty means package default.
func clock(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return strategy.ParseClock(s)
}
