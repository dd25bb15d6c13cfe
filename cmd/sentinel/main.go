// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Command sentinel runs the telemetry core as a standalone process: the
// alert dispatcher and the Prometheus metrics listener under a supervisor
// tree. The ingestion transport (webhook/MQTT) and the durable alert store
// are external collaborators wired in by the deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safelink/sentinel/internal/alerting"
	"github.com/safelink/sentinel/internal/anomaly"
	"github.com/safelink/sentinel/internal/classify"
	"github.com/safelink/sentinel/internal/config"
	"github.com/safelink/sentinel/internal/engine"
	"github.com/safelink/sentinel/internal/logging"
	"github.com/safelink/sentinel/internal/stats"
	"github.com/safelink/sentinel/internal/supervisor"
	"github.com/safelink/sentinel/internal/threshold"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: search standard locations)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(cfg.Logging)
	logging.Info().Str("metrics_addr", cfg.Server.MetricsAddr).Msg("sentinel starting")

	evaluator, err := threshold.NewEvaluator(cfg.Thresholds.Policies)
	if err != nil {
		return err
	}
	tracker := stats.NewTracker(cfg.Stats.PerType, stats.WithMinSamples(cfg.Stats.MinSamples))
	scorer := anomaly.NewScorer(evaluator, cfg.Anomaly)
	classifier := classify.New(cfg.Classify)

	bus := alerting.NewBus(logging.NewWatermillAdapter())
	defer bus.Close()

	manager, err := alerting.NewManager(cfg.Alerting, alerting.WithPublisher(bus))
	if err != nil {
		return err
	}

	core := engine.New(tracker, scorer, classifier, manager)
	_ = core // The ingestion transport attaches here; see package engine.

	// Until a durable store is wired in, committed transitions land in the
	// process log through the logging sink.
	dispatcher := alerting.NewDispatcher(bus, logSink{}, cfg.Dispatch)

	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAlertingService(dispatcher)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
	tree.AddObservabilityService(supervisor.NewHTTPService("metrics-listener", metricsServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Root().Serve(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	logging.Info().Msg("sentinel stopped")
	return nil
}

// logSink records committed alert transitions in the process log. Stands in
// for the external alert store until one is attached.
type logSink struct{}

func (logSink) Deliver(_ context.Context, ev *alerting.Event) error {
	logging.Info().
		Str("alert_id", ev.AlertID.String()).
		Str("entity_id", ev.EntityID).
		Str("alert_type", string(ev.AlertType)).
		Str("old_status", string(ev.OldStatus)).
		Str("new_status", string(ev.NewStatus)).
		Str("severity", string(ev.Severity)).
		Int("occurrence_count", ev.OccurrenceCount).
		Time("timestamp", ev.Timestamp).
		Msg("alert event delivered")
	return nil
}
