// Package orchestrator runs the decision cycle: capture a frame, detect
// vehicles, compute signal timing, persist the record. One orchestrator owns
// the whole loop; components are injected.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smarttraffic/trafficd/internal/camera"
	"github.com/smarttraffic/trafficd/internal/detect"
	"github.com/smarttraffic/trafficd/internal/events"
	"github.com/smarttraffic/trafficd/internal/history"
	"github.com/smarttraffic/trafficd/internal/model"
	"github.com/smarttraffic/trafficd/internal/timing"
)

// Options selects per-run behavior on top of the static config.
type Options struct {
	Algorithm model.Algorithm
	// SourceID pins capture to one source; -1 lets the manager fail over.
	SourceID int
}

// Orchestrator drives decision cycles over injected components.
type Orchestrator struct {
	cameras *camera.Manager
	det     detect.Detector
	engine  *timing.Engine
	store   history.Store
	metrics *MetricsRecorder
	bus     *events.Bus
	logger  *logrus.Logger
	opts    Options

	historyWindow int
	state         model.CycleState
}

func New(
	cameras *camera.Manager,
	det detect.Detector,
	engine *timing.Engine,
	store history.Store,
	metrics *MetricsRecorder,
	bus *events.Bus,
	logger *logrus.Logger,
	historyWindow int,
	opts Options,
) *Orchestrator {
	if opts.Algorithm == "" {
		opts.Algorithm = model.AlgorithmLinear
	}
	return &Orchestrator{
		cameras:       cameras,
		det:           det,
		engine:        engine,
		store:         store,
		metrics:       metrics,
		bus:           bus,
		logger:        logger,
		historyWindow: historyWindow,
		opts:          opts,
		state:         model.CycleIdle,
	}
}

// transition moves the cycle state machine, panicking on a programming error.
// The transition map is the authority on what the loop may do next.
func (o *Orchestrator) transition(to model.CycleState) {
	if !model.ValidCycleTransition(o.state, to) {
		panic(fmt.Sprintf("invalid cycle transition %s -> %s", o.state, to))
	}
	o.logger.WithFields(logrus.Fields{
		"from": o.state,
		"to":   to,
	}).Debug("cycle state transition")
	o.state = to
}

// RunSingle executes exactly one decision cycle and returns its outcome.
// Recoverable failures surface as errors here; the caller decides whether
// that skips or terminates.
func (o *Orchestrator) RunSingle(ctx context.Context) (*model.CycleOutcome, error) {
	outcome, err := o.runCycle(ctx)
	o.transition(model.CycleTerminated)
	return outcome, err
}

// RunContinuous repeats cycles until ctx is cancelled or maxCycles attempts
// (completed or skipped) have run; maxCycles 0 means unbounded. The interval
// is measured between cycle starts, so a long cycle compresses the idle gap.
// Cancellation is honored only between cycles: no partial records.
func (o *Orchestrator) RunContinuous(ctx context.Context, interval time.Duration, maxCycles int) error {
	o.logger.WithFields(logrus.Fields{
		"interval_sec": interval.Seconds(),
		"max_cycles":   maxCycles,
		"algorithm":    o.opts.Algorithm,
	}).Info("continuous mode started")

	g, gctx := errgroup.WithContext(ctx)

	// Metrics snapshots flush in the background so a crash mid-run still
	// leaves recent counters on disk.
	flushCtx, stopFlush := context.WithCancel(context.Background())
	g.Go(func() error {
		o.metrics.FlushLoop(flushCtx, 30*time.Second)
		return nil
	})

	g.Go(func() error {
		defer stopFlush()
		return o.cycleLoop(gctx, interval, maxCycles)
	})

	err := g.Wait()
	o.metrics.SetFramesDropped(int(o.cameras.FramesDropped()))
	if ferr := o.metrics.Flush(); ferr != nil {
		o.logger.WithField("error", ferr).Warn("final metrics flush failed")
	}
	return err
}

func (o *Orchestrator) cycleLoop(ctx context.Context, interval time.Duration, maxCycles int) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			o.transition(model.CycleTerminated)
			o.logger.Info("continuous mode stopped by cancellation")
			return nil
		}
		if maxCycles > 0 && attempts >= maxCycles {
			o.transition(model.CycleTerminated)
			o.logger.WithField("cycles", attempts).Info("max cycles reached")
			return nil
		}

		start := time.Now()
		attempts++

		_, err := o.runCycle(ctx)
		if err != nil && !model.IsRecoverable(err) {
			o.transition(model.CycleTerminated)
			return fmt.Errorf("cycle %d: %w", attempts, err)
		}

		// Sleep out the remainder of the interval, measured from cycle start.
		if o.state != model.CycleSleeping {
			o.transition(model.CycleSleeping)
		}
		remaining := interval - time.Since(start)
		if remaining > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(remaining):
			}
		}
		o.transition(model.CycleIdle)
	}
}

// runCycle performs one full traversal of the cycle state machine. On a
// recoverable failure it records the skip, moves to Sleeping, and returns
// the error; the caller chooses to continue or stop.
func (o *Orchestrator) runCycle(ctx context.Context) (*model.CycleOutcome, error) {
	cycleID := uuid.New().String()
	start := time.Now()
	log := o.logger.WithField("cycle", cycleID)

	o.transition(model.CycleCapturing)
	frame, err := o.cameras.Acquire(ctx, o.opts.SourceID)
	if err != nil {
		o.skip(cycleID, model.SkipCaptureFailed, err)
		return nil, err
	}

	o.transition(model.CycleDetecting)
	counts, err := o.det.Detect(ctx, frame)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			o.skip(cycleID, model.SkipInvalidCounts, err)
		} else {
			o.skip(cycleID, model.SkipDetectionFailed, err)
		}
		return nil, err
	}

	o.transition(model.CycleComputingTiming)
	recent, err := o.store.Recent(ctx, o.historyWindow)
	if err != nil {
		// History is advisory for timing; compute without it.
		log.WithField("error", err).Warn("history unavailable, computing without it")
		recent = nil
	}
	result, err := o.engine.Compute(counts, recent, o.opts.Algorithm)
	if err != nil {
		if model.IsRecoverable(err) {
			o.skip(cycleID, model.SkipInvalidCounts, err)
			return nil, err
		}
		// Fatal: misconfiguration, not bad traffic data.
		return nil, err
	}

	outcome := &model.CycleOutcome{
		CycleID:   cycleID,
		StartedAt: start.UTC(),
		SourceID:  frame.SourceID,
		Counts:    counts,
		Timing:    result,
		Elapsed:   time.Since(start),
	}

	o.transition(model.CyclePersisting)
	if err := o.store.Append(ctx, outcome.Record()); err != nil {
		o.skip(cycleID, model.SkipPersistFailed, err)
		// A persist failure skips the cycle, it does not stop the run.
		return nil, fmt.Errorf("%w: cycle record: %v", model.ErrPersistFailed, err)
	}

	o.metrics.IncCyclesCompleted()
	o.bus.Publish(events.EventCycleCompleted, map[string]interface{}{
		"cycle_id":    cycleID,
		"source_id":   frame.SourceID,
		"green_time":  result.GreenTime,
		"total_cycle": result.TotalCycleTime,
		"vehicles":    counts.Total(),
		"algorithm":   string(result.Algorithm),
	})

	log.WithFields(logrus.Fields{
		"source":      frame.SourceID,
		"vehicles":    counts.Total(),
		"weighted":    result.WeightedCount,
		"green_time":  result.GreenTime,
		"total_cycle": result.TotalCycleTime,
		"elapsed_sec": outcome.Elapsed.Seconds(),
	}).Info("cycle completed")

	// State stays at Persisting; the caller decides between Sleeping,
	// Idle, and Terminated.
	return outcome, nil
}

// skip records a skipped cycle: reason counter, event, and the transition to
// Sleeping. Skips never write history records.
func (o *Orchestrator) skip(cycleID string, reason model.SkipReason, cause error) {
	o.metrics.IncSkip(reason)
	o.bus.Publish(events.EventCycleSkipped, map[string]interface{}{
		"cycle_id": cycleID,
		"reason":   string(reason),
		"error":    cause.Error(),
	})
	o.logger.WithFields(logrus.Fields{
		"cycle":  cycleID,
		"reason": reason,
		"error":  cause,
	}).Warn("cycle skipped")
	o.transition(model.CycleSleeping)
}
