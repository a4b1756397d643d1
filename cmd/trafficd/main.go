package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/camera"
	"github.com/smarttraffic/trafficd/internal/config"
	"github.com/smarttraffic/trafficd/internal/detect"
	"github.com/smarttraffic/trafficd/internal/events"
	"github.com/smarttraffic/trafficd/internal/history"
	"github.com/smarttraffic/trafficd/internal/lock"
	"github.com/smarttraffic/trafficd/internal/model"
	"github.com/smarttraffic/trafficd/internal/orchestrator"
	"github.com/smarttraffic/trafficd/internal/report"
	"github.com/smarttraffic/trafficd/internal/timing"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runController(os.Args[2:])
	case "setup":
		runSetup(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "capture":
		runCapture(os.Args[2:])
	case "version":
		fmt.Printf("trafficd %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`trafficd - adaptive traffic signal controller

Usage:
  trafficd setup <data_dir> [project_name]   initialize a data directory
  trafficd run [options]                     run decision cycles
  trafficd report [options]                  summarize collected history
  trafficd capture [options]                 exercise the camera sources
  trafficd version                           print version

Run options:
  --data-dir DIR      data directory (default: ./traffic_data)
  --mode MODE         single or continuous (default: from config)
  --algorithm ALG     linear, logarithmic, or adaptive
  --interval SEC      seconds between cycle starts in continuous mode
  --max-cycles N      stop after N cycles (0 = until signalled)
  --camera N          pin capture to source N (-1 = failover order)
  --detector URL      detection service base URL

Report options:
  --data-dir DIR      data directory (default: ./traffic_data)
  --window N          only the most recent N cycles (0 = all)
  --json FILE         also write the report as JSON

Capture options:
  --data-dir DIR      data directory (default: ./traffic_data)
  --mode MODE         single, burst, or continuous (default: single)
  --count N           frames per burst (default: 5)
  --duration SEC      continuous capture length (default: 30)
  --camera N          pin capture to source N (-1 = failover order)`)
}

func runSetup(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: trafficd setup <data_dir> [project_name]")
		os.Exit(1)
	}
	name := "intersection"
	if len(args) > 1 {
		name = args[1]
	}
	if err := config.Setup(args[0], name); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(args[0])
	fmt.Printf("Initialized trafficd data directory in %s\n", absDir)
}

func runController(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dataDir := fs.String("data-dir", "traffic_data", "data directory")
	mode := fs.String("mode", "", "single or continuous")
	algorithm := fs.String("algorithm", "", "timing algorithm")
	interval := fs.Float64("interval", 0, "seconds between cycle starts")
	maxCycles := fs.Int("max-cycles", -1, "stop after N cycles")
	cameraID := fs.Int("camera", -1, "pin capture to one source")
	detectorURL := fs.String("detector", "", "detection service base URL")
	_ = fs.Parse(args)

	cfg, err := config.Load(*dataDir)
	if err != nil {
		fatal(err)
	}

	// CLI flags override the loaded config for this run only.
	if *mode != "" {
		cfg.Cycle.Mode = *mode
	}
	if *algorithm != "" {
		cfg.Cycle.Algorithm = model.Algorithm(*algorithm)
	}
	if *interval > 0 {
		cfg.Cycle.IntervalSec = *interval
	}
	if *maxCycles >= 0 {
		cfg.Cycle.MaxCycles = *maxCycles
	}
	if *detectorURL != "" {
		cfg.Detector.BaseURL = *detectorURL
	}
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger := newLogger(cfg.Logging.Level)

	// One controller per data directory.
	if err := os.MkdirAll(filepath.Join(*dataDir, "locks"), 0755); err != nil {
		fatal(fmt.Errorf("create locks dir: %w", err))
	}
	fileLock := lock.NewFileLock(filepath.Join(*dataDir, "locks", "controller.lock"))
	if err := fileLock.TryLock(); err != nil {
		fatal(err)
	}
	defer func() { _ = fileLock.Unlock() }()

	ctx, stop := signalContext(logger, time.Duration(cfg.Daemon.ShutdownTimeoutSec)*time.Second)
	defer stop()

	bus := events.NewBus(100)
	defer bus.Close()

	audit, err := events.NewAuditLogger(filepath.Join(*dataDir, "logs", "events.jsonl"), 0)
	if err != nil {
		logger.WithField("error", err).Warn("audit log unavailable")
	} else {
		audit.AttachTo(bus)
		defer func() { _ = audit.Close() }()
	}

	sources, err := camera.BuildSources(cfg.Camera)
	if err != nil {
		fatal(err)
	}
	cameras := camera.NewManager(cfg.Camera, sources, lock.NewMutexMap(), bus, logger)

	detector, err := detect.New(cfg.Detector, logger)
	if err != nil {
		fatal(err)
	}

	store, err := history.New(ctx, cfg.History, *dataDir, logger)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	metrics, err := orchestrator.NewMetricsRecorder(*dataDir, logger)
	if err != nil {
		fatal(err)
	}
	metrics.SubscribeFailovers(bus)

	orch := orchestrator.New(
		cameras,
		detector,
		timing.NewEngine(cfg.Timing),
		store,
		metrics,
		bus,
		logger,
		cfg.Timing.HistoryWindow,
		orchestrator.Options{
			Algorithm: cfg.Cycle.Algorithm,
			SourceID:  *cameraID,
		},
	)

	logger.WithFields(logrus.Fields{
		"mode":      cfg.Cycle.Mode,
		"algorithm": cfg.Cycle.Algorithm,
		"data_dir":  *dataDir,
	}).Info("trafficd starting")

	switch cfg.Cycle.Mode {
	case "single":
		outcome, err := orch.RunSingle(ctx)
		if ferr := metrics.Flush(); ferr != nil {
			logger.WithField("error", ferr).Warn("metrics flush failed")
		}
		if err != nil {
			fatal(err)
		}
		fmt.Printf("green=%ds yellow=%ds all_red=%ds total=%ds vehicles=%d\n",
			outcome.Timing.GreenTime, outcome.Timing.YellowTime,
			outcome.Timing.AllRedTime, outcome.Timing.TotalCycleTime,
			outcome.Counts.Total())
	case "continuous":
		cycleInterval := time.Duration(cfg.Cycle.IntervalSec * float64(time.Second))
		if err := orch.RunContinuous(ctx, cycleInterval, cfg.Cycle.MaxCycles); err != nil {
			fatal(err)
		}
		writeFinalReport(*dataDir, cfg, store, logger)
	default:
		fatal(&model.ConfigError{Field: "cycle.mode", Err: fmt.Errorf("unknown mode %q", cfg.Cycle.Mode)})
	}

	logger.Info("trafficd stopped")
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dataDir := fs.String("data-dir", "traffic_data", "data directory")
	window := fs.Int("window", -1, "most recent N cycles (0 = all)")
	jsonPath := fs.String("json", "", "write JSON report to this path")
	_ = fs.Parse(args)

	cfg, err := config.Load(*dataDir)
	if err != nil {
		fatal(err)
	}
	if *window < 0 {
		*window = cfg.History.AggregateWindow
	}
	logger := newLogger("error")

	ctx := context.Background()
	store, err := history.New(ctx, cfg.History, *dataDir, logger)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = store.Close() }()

	sum, err := store.Aggregate(ctx, *window)
	if err != nil {
		fatal(err)
	}
	records, err := store.Recent(ctx, *window)
	if err != nil {
		fatal(err)
	}

	rep := report.Build(sum, records, cfg.Timing.BaseGreen)
	fmt.Print(report.RenderText(rep, records))

	if *jsonPath != "" {
		if err := report.WriteJSON(*jsonPath, rep); err != nil {
			fatal(err)
		}
		fmt.Printf("Report written to %s\n", *jsonPath)
	}
}

// runCapture exercises the camera sources without detection: grab frames,
// write them to the captures directory, and report per-source health. Useful
// when standing up a new intersection.
func runCapture(args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	dataDir := fs.String("data-dir", "traffic_data", "data directory")
	mode := fs.String("mode", "single", "single, burst, or continuous")
	count := fs.Int("count", 5, "frames per burst")
	duration := fs.Float64("duration", 30, "continuous capture length in seconds")
	cameraID := fs.Int("camera", -1, "pin capture to one source")
	_ = fs.Parse(args)

	cfg, err := config.Load(*dataDir)
	if err != nil {
		fatal(err)
	}
	logger := newLogger(cfg.Logging.Level)

	sources, err := camera.BuildSources(cfg.Camera)
	if err != nil {
		fatal(err)
	}
	bus := events.NewBus(100)
	defer bus.Close()
	cameras := camera.NewManager(cfg.Camera, sources, lock.NewMutexMap(), bus, logger)

	ctx, stop := signalContext(logger, time.Duration(cfg.Daemon.ShutdownTimeoutSec)*time.Second)
	defer stop()

	outDir := filepath.Join(*dataDir, "captures")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		fatal(fmt.Errorf("create captures dir: %w", err))
	}

	captureInterval := time.Duration(cfg.Camera.CaptureInterval * float64(time.Second))
	if captureInterval <= 0 {
		captureInterval = 5 * time.Second
	}

	var frames []*model.Frame
	switch *mode {
	case "single":
		frame, err := cameras.Acquire(ctx, *cameraID)
		if err != nil {
			fatal(err)
		}
		frames = append(frames, frame)
	case "burst":
		frames, err = cameras.Burst(ctx, *count, captureInterval)
		if err != nil {
			fatal(err)
		}
	case "continuous":
		ch, err := cameras.StartContinuous(ctx, captureInterval)
		if err != nil {
			fatal(err)
		}
		deadline := time.After(time.Duration(*duration * float64(time.Second)))
	drain:
		for {
			select {
			case frame, ok := <-ch:
				if !ok {
					break drain
				}
				frames = append(frames, frame)
			case <-deadline:
				break drain
			case <-ctx.Done():
				break drain
			}
		}
		cameras.StopContinuous()
	default:
		fatal(&model.ConfigError{Field: "mode", Err: fmt.Errorf("unknown capture mode %q", *mode)})
	}

	for _, frame := range frames {
		path := filepath.Join(outDir, frame.ID+".pgm")
		if err := os.WriteFile(path, frame.Data, 0644); err != nil {
			logger.WithFields(logrus.Fields{"frame": frame.ID, "error": err}).Warn("frame not written")
		}
	}

	fmt.Printf("captured %d frame(s) to %s\n", len(frames), outDir)
	for _, s := range cfg.Camera.Sources {
		fmt.Printf("source %d: %s\n", s.Index, cameras.Health(s.Index))
	}
	if dropped := cameras.FramesDropped(); dropped > 0 {
		fmt.Printf("dropped %d stale frame(s)\n", dropped)
	}
}

// writeFinalReport mirrors the end-of-run report a continuous session leaves
// behind in the reports directory.
func writeFinalReport(dataDir string, cfg model.Config, store history.Store, logger *logrus.Logger) {
	ctx := context.Background()
	sum, err := store.Aggregate(ctx, 0)
	if err != nil || sum.Cycles == 0 {
		return
	}
	records, err := store.Recent(ctx, 0)
	if err != nil {
		return
	}

	path := filepath.Join(dataDir, "reports",
		fmt.Sprintf("report_%s.json", time.Now().Format("20060102_150405")))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.WithField("error", err).Warn("report directory unavailable")
		return
	}

	rep := report.Build(sum, records, cfg.Timing.BaseGreen)
	if err := report.WriteJSON(path, rep); err != nil {
		logger.WithField("error", err).Warn("final report not written")
		return
	}
	logger.WithField("path", path).Info("final report written")
}

// signalContext cancels on SIGINT/SIGTERM. A second signal, or a graceful
// shutdown outlasting the timeout, exits immediately.
func signalContext(logger *logrus.Logger, shutdownTimeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutdown requested")
		cancel()

		var deadline <-chan time.Time
		if shutdownTimeout > 0 {
			deadline = time.After(shutdownTimeout)
		}
		select {
		case sig = <-sigCh:
			logger.WithField("signal", sig.String()).Error("forced shutdown")
		case <-deadline:
			logger.WithField("timeout_sec", shutdownTimeout.Seconds()).Error("graceful shutdown timed out")
		}
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// fatal prints the error and exits 2 for configuration faults, 1 otherwise.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "trafficd: %v\n", err)
	var ce *model.ConfigError
	if errors.As(err, &ce) {
		os.Exit(2)
	}
	os.Exit(1)
}
