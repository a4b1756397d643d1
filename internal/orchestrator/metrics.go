package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/smarttraffic/trafficd/internal/events"
	"github.com/smarttraffic/trafficd/internal/model"
	"github.com/smarttraffic/trafficd/internal/storage"
)

// MetricsRecorder accumulates run counters and snapshots them to
// state/metrics.yaml. Counters survive restarts; a fresh run continues the
// existing totals.
type MetricsRecorder struct {
	path   string
	logger *logrus.Logger

	mu      sync.Mutex
	metrics model.Metrics
}

// NewMetricsRecorder loads any existing snapshot from the data directory.
// A corrupt snapshot is quarantined and counting restarts from zero.
func NewMetricsRecorder(dataDir string, logger *logrus.Logger) (*MetricsRecorder, error) {
	path := filepath.Join(dataDir, "state", "metrics.yaml")
	r := &MetricsRecorder{
		path:   path,
		logger: logger,
		metrics: model.Metrics{
			SchemaVersion: 1,
			FileType:      "state_metrics",
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics snapshot: %w", err)
	}

	var loaded model.Metrics
	if err := yamlv3.Unmarshal(data, &loaded); err != nil {
		qpath, qerr := storage.Quarantine(dataDir, path)
		if qerr != nil {
			return nil, fmt.Errorf("metrics snapshot corrupt and quarantine failed: %w", qerr)
		}
		logger.WithFields(logrus.Fields{
			"file":        path,
			"quarantined": qpath,
		}).Warn("corrupt metrics snapshot quarantined, counters reset")
		return r, nil
	}

	r.metrics = loaded
	return r, nil
}

// SubscribeFailovers counts failover events published by the capture manager.
func (r *MetricsRecorder) SubscribeFailovers(bus *events.Bus) {
	bus.Subscribe(events.EventCaptureFailover, func(events.Event) {
		r.mu.Lock()
		r.metrics.Counters.Failovers++
		r.mu.Unlock()
	})
}

func (r *MetricsRecorder) IncCyclesCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.Counters.CyclesCompleted++
}

// IncSkip bumps the skip total and the per-reason counter.
func (r *MetricsRecorder) IncSkip(reason model.SkipReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.Counters.CyclesSkipped++
	switch reason {
	case model.SkipCaptureFailed:
		r.metrics.Counters.CaptureFailures++
	case model.SkipDetectionFailed:
		r.metrics.Counters.DetectionFailures++
	case model.SkipInvalidCounts:
		r.metrics.Counters.InvalidCounts++
	case model.SkipPersistFailed:
		r.metrics.Counters.PersistFailures++
	}
}

func (r *MetricsRecorder) SetFramesDropped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.Counters.FramesDropped = n
}

// Snapshot returns a copy of the current counters.
func (r *MetricsRecorder) Snapshot() model.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Flush writes the snapshot atomically.
func (r *MetricsRecorder) Flush() error {
	r.mu.Lock()
	now := time.Now().UTC().Format(time.RFC3339)
	r.metrics.UpdatedAt = &now
	snapshot := r.metrics
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return storage.AtomicWriteYAML(r.path, &snapshot)
}

// FlushLoop writes snapshots on a fixed cadence until ctx is cancelled.
// Flush errors are logged and retried next tick; metrics are diagnostic,
// never load-bearing.
func (r *MetricsRecorder) FlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.logger.WithField("error", err).Warn("metrics flush failed")
			}
		}
	}
}
