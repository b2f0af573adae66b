// Command forestz-demo runs two interleaving tasks and prints one tree per task.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/forestz"
	"github.com/zoobzio/forestz/config"
	"github.com/zoobzio/forestz/otelbridge"
	"github.com/zoobzio/forestz/render"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", "", "path to a YAML config file")
	count := flag.Int("count", 6, "numbers each task counts through")
	flag.Parse()

	// Load .env file if present.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "forestz-demo:", err)
		return 1
	}
	logger := newLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *count); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, count int) error {
	out, closeOut, err := openTarget(cfg.Output.Target)
	if err != nil {
		return err
	}
	defer closeOut()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	queue := forestz.NewQueue(
		forestz.NewPrinter(newFormatter(cfg.Output), out),
		forestz.WithCapacity(cfg.Sink.Capacity),
		forestz.WithPolicy(cfg.Sink.Policy()),
		forestz.WithQueueLogger(logger),
		forestz.WithQueueRegisterer(reg),
	)
	engine := forestz.New(queue,
		forestz.WithLogger(logger),
		forestz.WithTombstones(cfg.Engine.Tombstones),
		forestz.WithRegisterer(reg),
	)

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return countBy(gctx, engine, "counting_evens", 0, count) })
	g.Go(func() error { return countBy(gctx, engine, "counting_odds", 1, count) })
	runErr := g.Wait()

	if cfg.Engine.OTel {
		if err := runOTel(ctx, engine, count); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	if n := engine.Flush(); n > 0 {
		logger.Warn("force-closed open spans", "count", n)
	}
	engine.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sink.ShutdownTimeout)
	defer cancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}

	logger.Info("done",
		"delivered", queue.Delivered(),
		"dropped", queue.Dropped(),
		"violations", engine.Violations(),
	)
	return runErr
}

// countBy emits every other number below limit inside one span.
func countBy(ctx context.Context, engine *forestz.Engine, name string, start, limit int) error {
	ctx, span := engine.StartSpan(ctx, name)
	defer span.Finish()

	for i := start; i < limit; i += 2 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := span.Event(forestz.LevelInfo, strconv.Itoa(i), nil); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}

	_, inner := engine.StartSpan(ctx, "summarize", forestz.WithLevel(forestz.LevelDebug))
	_ = inner.SetField("limit", limit)
	inner.Finish()
	return nil
}

// runOTel replays the scenario through an OpenTelemetry tracer.
func runOTel(ctx context.Context, engine *forestz.Engine, count int) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(otelbridge.NewProcessor(engine)))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("forestz-demo")

	g, gctx := errgroup.WithContext(ctx)
	for _, start := range []int{0, 1} {
		name := "otel_counting_evens"
		if start == 1 {
			name = "otel_counting_odds"
		}
		g.Go(func() error {
			_, span := tracer.Start(gctx, name)
			defer span.End()
			for i := start; i < count; i += 2 {
				span.AddEvent(strconv.Itoa(i))
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

func newFormatter(cfg config.OutputConfig) forestz.Formatter {
	switch cfg.Format {
	case "json":
		return render.NewJSON()
	case "json-indent":
		return render.NewIndentedJSON("  ")
	}
	var opts []render.PrettyOption
	if cfg.Timestamps {
		opts = append(opts, render.WithTimestamps())
	}
	if cfg.TraceIDs {
		opts = append(opts, render.WithTraceIDs())
	}
	return render.NewPretty(opts...)
}

func openTarget(target string) (io.Writer, func(), error) {
	switch target {
	case "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
