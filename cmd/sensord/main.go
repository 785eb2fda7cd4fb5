package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/speedwagon-io/idlerguard/internal/buffer"
	"github.com/speedwagon-io/idlerguard/internal/collector"
	"github.com/speedwagon-io/idlerguard/internal/collector/adapters"
	"github.com/speedwagon-io/idlerguard/internal/config"
	"github.com/speedwagon-io/idlerguard/internal/fault"
	"github.com/speedwagon-io/idlerguard/internal/forwarder"
	"github.com/speedwagon-io/idlerguard/internal/health"
	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/metrics"
	"github.com/speedwagon-io/idlerguard/internal/sender"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log postings instead of sending")
	simulate := flag.Bool("simulate", false, "force every sensor into simulate mode")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting idler sensor daemon",
		slog.String("env", cfg.Env),
		slog.Bool("dry_run", *dryRun),
		slog.Bool("simulate", *simulate),
	)

	sensorsCfg := config.MustLoadSensors(cfg.Sensors.ConfigPath)
	if *simulate {
		for i := range sensorsCfg.Sensors {
			sensorsCfg.Sensors[i].Simulate = true
		}
	}

	sensors, catalog, err := sensorsCfg.Build()
	if err != nil {
		log.Error("invalid sensors config", sl.Err(err))
		os.Exit(1)
	}

	log.Info("loaded sensors config",
		slog.String("site_id", sensorsCfg.SiteID),
		slog.String("site_name", sensorsCfg.SiteName),
		slog.Int("sensors", len(sensors)),
		slog.Any("fault_classes", catalog.Classes()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewProm(reg)

	scorer := fault.NewScorer(catalog)
	manager := collector.NewManager(log, cfg.Acquisition.StopTimeout)
	sources := make(map[string]forwarder.Source, len(sensors))

	for _, sensor := range sensors {
		device, err := adapters.New(log.With(slog.String("sensor", sensor.Key)), sensor.Type, sensor.Config, scorer)
		if err != nil {
			log.Error("failed to create device", slog.String("sensor", sensor.Key), sl.Err(err))
			os.Exit(1)
		}

		engine := collector.NewEngine(log, sensor.Config, device, collector.Options{
			Name:          sensor.Key,
			MaxErrors:     cfg.Acquisition.MaxErrors,
			Cooldown:      cfg.Acquisition.Cooldown,
			QueueCapacity: cfg.Acquisition.QueueCapacity,
			Observer:      prom,
		})
		manager.AddSensor(sensor.Key, engine)
		sources[sensor.Key] = engine
	}

	// Use LogSender for dry-run mode, HTTPSender otherwise
	var dataSender sender.Sender
	if *dryRun {
		dataSender = sender.NewLogSender(log)
		log.Info("dry-run mode: postings will be logged instead of sent")
	} else {
		dataSender = sender.NewHTTPSender(log, &cfg.Sender)
	}

	var buf buffer.Buffer
	if cfg.Buffer.Enabled && !*dryRun {
		sqliteBuf, err := buffer.NewSQLiteBuffer(log, cfg.Buffer.Path)
		if err != nil {
			log.Error("failed to create buffer", sl.Err(err))
			os.Exit(1)
		}
		buf = sqliteBuf
		log.Info("buffer enabled", slog.String("path", cfg.Buffer.Path))
	}

	healthServer := health.NewServer(log, cfg.Health.Address, reg)
	healthServer.AddChecker(health.NewSenderChecker(dataSender.Health))
	healthServer.AddChecker(health.NewSensorChecker(manager))
	healthServer.SetSensors(manager)
	if buf != nil {
		healthServer.AddChecker(health.NewBufferChecker(buf.Count, health.DefaultBufferLimit))
	}

	if err := healthServer.Start(); err != nil {
		log.Error("failed to start health server", sl.Err(err))
		os.Exit(1)
	}

	fwd := forwarder.New(log, forwarder.Options{
		SiteID:        sensorsCfg.SiteID,
		PollTimeout:   cfg.Acquisition.PollTimeout,
		BufferEnabled: buf != nil,
		RetryInterval: cfg.Buffer.RetryInterval,
		MaxAge:        cfg.Buffer.MaxAge,
		BatchSize:     cfg.Buffer.BatchSize,
		Recorder:      prom,
	}, sources, dataSender, buf)

	if err := manager.StartAll(); err != nil {
		log.Error("some sensors did not start", sl.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	fwd.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	manager.StopAll()
	fwd.Stop()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop health server", sl.Err(err))
	}

	if buf != nil {
		if err := buf.Close(); err != nil {
			log.Error("failed to close buffer", sl.Err(err))
		}
	}

	log.Info("sensor daemon stopped")
}
