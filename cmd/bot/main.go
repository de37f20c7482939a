package main

import (
	"context"
	"flag"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/archive"
	"main/internal/bus"
	"main/internal/experiment"
	"main/internal/og"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/report"
	"main/internal/schema"
	"main/internal/sim"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (empty=simulated defaults)")
	duration := flag.Float64("duration", 2, "Experiment duration in hours")
	recordFile := flag.String("record", "", "Record session events to this file")
	replayFile := flag.String("replay", "", "Replay a recording instead of running an experiment")
	replaySpeed := flag.Float64("replay-speed", 1, "Replay speed multiplier")
	startingBalance := flag.Float64("balance", 10_000, "Paper broker starting balance")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logs.Debugf("no .env file loaded: %+v", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("config load failed: %+v", err)
	}

	if cfg.Profiler.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiler.AppName,
			ServerAddress:   cfg.Profiler.ServerAddress,
		})
		if err != nil {
			fatalf("pyroscope start failed: %+v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	b := bus.New(bus.Config{MaxBufferedBytes: cfg.Bus.MaxBufferedBytes})
	feed := sim.NewFeed(b, 0)
	broker := sim.NewBroker(decimal.NewFromFloat(*startingBalance))
	strategy := sim.NewStrategy(broker, b)
	universe := sim.DefaultUniverse()

	b.Attach(&strategyTap{strategy: strategy})

	rec := recorder.New(recorder.Config{
		AllowedTopics:  cfg.Recorder.AllowedTopics,
		StatusInterval: time.Duration(cfg.Recorder.StatusIntervalSec) * time.Second,
	}, feed, b)
	b.Attach(rec)

	channel := og.New(og.Config{
		URL:            cfg.Order.URL,
		APIKey:         cfg.Order.APIKey,
		APISecret:      cfg.Order.APISecret,
		Disabled:       cfg.Order.Disabled,
		PingInterval:   cfg.Order.PingInterval(),
		RequestTimeout: cfg.Order.RequestTimeout(),
	})
	channel.Start()
	defer channel.Stop()

	var store *archive.Archive
	if cfg.Archive.Enabled {
		store, err = archive.New(archive.Option{
			Host:     cfg.Archive.Host,
			Port:     cfg.Archive.Port,
			User:     cfg.Archive.User,
			Password: cfg.Archive.Password,
			Database: cfg.Archive.DBName,
		})
		if err != nil {
			fatalf("archive open failed: %+v", err)
		}
		defer func() {
			_ = store.Close()
		}()
	}

	if *replayFile != "" {
		runReplay(rec, feed, universe, *replayFile, *replaySpeed)
		return
	}

	if err := feed.Start(true); err != nil {
		fatalf("feed start failed: %+v", err)
	}
	defer feed.Stop()

	if *recordFile != "" {
		if already, err := rec.StartRecording(*recordFile); err != nil {
			fatalf("recording start failed: %+v", err)
		} else if already {
			logs.Warnf("recording already active")
		}
		defer rec.StopRecording()
	}

	orch := experiment.New(experiment.Config{
		PollInterval:   time.Duration(cfg.Experiment.PollIntervalSec) * time.Second,
		StatusInterval: time.Duration(cfg.Experiment.StatusIntervalSec) * time.Second,
		RunLogDir:      cfg.Experiment.RunLogDir,
		SymbolCount:    cfg.Experiment.SymbolCount,
		MinMarketCap:   cfg.Experiment.MinMarketCap,
	}, feed, strategy, broker, universe, b)

	if _, err := orch.Start(context.Background(), experiment.StartOptions{
		DurationHours: *duration,
	}); err != nil {
		fatalf("experiment start failed: %+v", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for running := true; running; {
		select {
		case <-sys.Shutdown():
			orch.Stop("shutdown signal")
			orch.Wait()
			running = false
		case <-ticker.C:
			if run, ok := orch.Status(); ok && !run.Running {
				running = false
			}
		}
	}

	run, ok := orch.Status()
	if !ok {
		return
	}
	report.PrintRun(os.Stdout, run)
	if store != nil {
		if err := store.SaveRun(run); err != nil {
			logs.Errorf("archive run failed: %+v", err)
		}
	}
}

func loadConfig(path string) (ops.Config, error) {
	if path == "" {
		return ops.Default(), nil
	}
	return ops.Load(path)
}

func runReplay(rec *recorder.Recorder, feed *sim.Feed, universe *sim.Universe, file string, speed float64) {
	symbols, err := universe.TopPerps(context.Background(), 0, 0)
	if err == nil {
		feed.SetSymbols(symbols)
	}
	if err := rec.StartReplay(file, speed); err != nil {
		fatalf("replay start failed: %+v", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sys.Shutdown():
			delivered, total := rec.StopReplay()
			logs.Infof("replay interrupted: %d/%d events delivered", delivered, total)
			return
		case <-ticker.C:
			status := rec.Status()
			if status.Done {
				logs.Infof("replay finished: %d/%d events delivered", status.Replayed, status.Total)
				return
			}
		}
	}
}

func fatalf(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}

// strategyTap feeds broadcast ticks into the strategy without a network hop.
type strategyTap struct {
	strategy *sim.Strategy
}

func (t *strategyTap) Capture(topic string, payload any, _ time.Time) {
	if topic != schema.TopicTick {
		return
	}
	if tick, ok := payload.(schema.Tick); ok {
		t.strategy.OnTick(tick)
	}
}
