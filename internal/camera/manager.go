package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/events"
	"github.com/smarttraffic/trafficd/internal/lock"
	"github.com/smarttraffic/trafficd/internal/model"
)

// Manager owns every configured camera source and its health state. It is
// the only component that mutates CameraState.
type Manager struct {
	cfg     model.CameraConfig
	sources []Source // priority order = config order
	health  map[int]*sourceHealth
	lockMap *lock.MutexMap
	bus     *events.Bus
	logger  *logrus.Logger

	contMu     sync.Mutex
	contCancel context.CancelFunc
	contDone   chan struct{}
	frames     chan *model.Frame
	dropped    atomic.Int64
}

// NewManager creates a capture manager over the given sources. The lock map
// makes continuous capture and single-shot acquire mutually exclusive per
// source.
func NewManager(cfg model.CameraConfig, sources []Source, lockMap *lock.MutexMap, bus *events.Bus, logger *logrus.Logger) *Manager {
	health := make(map[int]*sourceHealth, len(sources))
	for _, s := range sources {
		health[s.ID()] = newSourceHealth()
	}
	return &Manager{
		cfg:     cfg,
		sources: sources,
		health:  health,
		lockMap: lockMap,
		bus:     bus,
		logger:  logger,
	}
}

// BuildSources constructs sources from configuration, in priority order.
func BuildSources(cfg model.CameraConfig) ([]Source, error) {
	sources := make([]Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		switch sc.Kind {
		case "directory":
			sources = append(sources, NewDirectorySource(sc.Index, sc.SpoolDir, sc.Width, sc.Height))
		case "synthetic":
			sources = append(sources, NewSyntheticSource(sc.Index, sc.Width, sc.Height))
		default:
			return nil, &model.ConfigError{
				Field: "camera.sources",
				Err:   fmt.Errorf("unknown source kind %q", sc.Kind),
			}
		}
	}
	return sources, nil
}

// Health returns the current state of a source, CameraFailed for unknown IDs.
func (m *Manager) Health(sourceID int) model.CameraState {
	if h, ok := m.health[sourceID]; ok {
		return h.State()
	}
	return model.CameraFailed
}

// FramesDropped reports how many continuous-mode frames were discarded to
// keep the queue fresh.
func (m *Manager) FramesDropped() int64 {
	return m.dropped.Load()
}

// Acquire grabs one frame. With a specific sourceID (>= 0) only that source
// is tried; otherwise sources are tried in priority order, skipping failed
// sources still in their re-probe cooldown. Every source's retry budget
// exhausted yields a CaptureError wrapping ErrAllSourcesExhausted — fatal to
// the cycle, never the process.
func (m *Manager) Acquire(ctx context.Context, sourceID int) (*model.Frame, error) {
	if sourceID >= 0 {
		src := m.sourceByID(sourceID)
		if src == nil {
			return nil, &model.CaptureError{
				SourceIDs: []int{sourceID},
				Err:       fmt.Errorf("%w: no such source %d", model.ErrSourceFailed, sourceID),
			}
		}
		frame, err := m.acquireSource(ctx, src)
		if err != nil {
			return nil, &model.CaptureError{
				SourceIDs: []int{sourceID},
				Err:       fmt.Errorf("%w: %v", model.ErrAllSourcesExhausted, err),
			}
		}
		return frame, nil
	}

	cooldown := time.Duration(m.cfg.ReprobeCooldownSec) * time.Second
	tried := []int{}
	for i, src := range m.sources {
		if m.health[src.ID()].inCooldown(cooldown) {
			m.logger.WithField("source", src.ID()).Debug("skipping failed source in cooldown")
			continue
		}

		tried = append(tried, src.ID())
		frame, err := m.acquireSource(ctx, src)
		if err == nil {
			return frame, nil
		}

		if i < len(m.sources)-1 {
			m.logger.WithFields(logrus.Fields{
				"source": src.ID(),
				"error":  err,
			}).Warn("source exhausted, failing over")
			m.bus.Publish(events.EventCaptureFailover, map[string]interface{}{
				"source_id": src.ID(),
			})
		}
	}

	m.logger.WithField("sources_tried", tried).Error("all camera sources exhausted")
	return nil, &model.CaptureError{SourceIDs: tried, Err: model.ErrAllSourcesExhausted}
}

// Burst captures count frames in quick succession with no detection in
// between. Frames that fail to capture are skipped; the slice holds what
// succeeded.
func (m *Manager) Burst(ctx context.Context, count int, interval time.Duration) ([]*model.Frame, error) {
	frames := make([]*model.Frame, 0, count)
	for i := 0; i < count; i++ {
		frame, err := m.Acquire(ctx, -1)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"burst_index": i,
				"error":       err,
			}).Warn("burst frame failed")
		} else {
			frames = append(frames, frame)
		}

		if i < count-1 {
			select {
			case <-ctx.Done():
				return frames, ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	if len(frames) == 0 {
		return nil, &model.CaptureError{Err: model.ErrAllSourcesExhausted}
	}
	m.logger.WithFields(logrus.Fields{
		"captured":  len(frames),
		"requested": count,
	}).Info("burst capture complete")
	return frames, nil
}

// StartContinuous launches the background producer: one acquire per interval
// into a bounded queue. When the queue is full the oldest unconsumed frame
// is dropped — freshness beats completeness for signal decisions.
func (m *Manager) StartContinuous(ctx context.Context, interval time.Duration) (<-chan *model.Frame, error) {
	m.contMu.Lock()
	defer m.contMu.Unlock()

	if m.contCancel != nil {
		return nil, fmt.Errorf("continuous capture already running")
	}

	queueSize := m.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 10
	}
	m.frames = make(chan *model.Frame, queueSize)

	prodCtx, cancel := context.WithCancel(ctx)
	m.contCancel = cancel
	m.contDone = make(chan struct{})

	go m.produceLoop(prodCtx, interval)

	m.logger.WithFields(logrus.Fields{
		"interval_sec": interval.Seconds(),
		"queue_size":   queueSize,
	}).Info("continuous capture started")
	return m.frames, nil
}

// StopContinuous stops the producer and closes the frame channel.
// Idempotent.
func (m *Manager) StopContinuous() {
	m.contMu.Lock()
	defer m.contMu.Unlock()

	if m.contCancel == nil {
		return
	}
	m.contCancel()
	<-m.contDone
	close(m.frames)
	m.contCancel = nil
	m.logger.Info("continuous capture stopped")
}

func (m *Manager) produceLoop(ctx context.Context, interval time.Duration) {
	defer close(m.contDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame, err := m.Acquire(ctx, -1)
		if err == nil {
			m.enqueue(frame)
		} else if ctx.Err() == nil {
			m.logger.WithField("error", err).Warn("continuous capture failed, will retry next tick")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// enqueue pushes a frame, evicting the oldest queued frame when full.
func (m *Manager) enqueue(frame *model.Frame) {
	for {
		select {
		case m.frames <- frame:
			return
		default:
		}
		select {
		case stale := <-m.frames:
			m.dropped.Add(1)
			m.logger.WithField("frame", stale.ID).Debug("dropped stale frame")
		default:
		}
	}
}

// acquireSource runs one source's full retry budget under its lock. Success
// resets health; exhaustion advances the health state machine.
func (m *Manager) acquireSource(ctx context.Context, src Source) (*model.Frame, error) {
	key := lock.SourceKey(src.ID())
	m.lockMap.Lock(key)
	defer m.lockMap.Unlock(key)

	attempts := m.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	retryDelay := time.Duration(m.cfg.RetryDelayMs) * time.Millisecond
	attemptTimeout := time.Duration(m.cfg.AttemptTimeoutSec) * time.Second
	if attemptTimeout <= 0 {
		attemptTimeout = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		frame, err := src.Grab(attemptCtx)
		cancel()

		if err == nil {
			if prev := m.health[src.ID()].recordSuccess(); prev != model.CameraHealthy {
				m.logger.WithFields(logrus.Fields{
					"source": src.ID(),
					"from":   prev,
				}).Info("source recovered")
				m.publishStateChange(src.ID(), prev, model.CameraHealthy)
			}
			return frame, nil
		}
		lastErr = err

		m.logger.WithFields(logrus.Fields{
			"source":  src.ID(),
			"attempt": fmt.Sprintf("%d/%d", attempt, attempts),
			"error":   err,
		}).Warn("capture attempt failed")

		if ctx.Err() != nil {
			break
		}
		if attempt < attempts && retryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}
	}

	prev, next := m.health[src.ID()].recordFailure(m.cfg.FailureThreshold)
	if prev != next {
		m.logger.WithFields(logrus.Fields{
			"source": src.ID(),
			"from":   prev,
			"to":     next,
		}).Warn("source health degraded")
		m.publishStateChange(src.ID(), prev, next)
	}

	return nil, fmt.Errorf("%w: source %d after %d attempts: %v",
		model.ErrSourceFailed, src.ID(), attempts, lastErr)
}

func (m *Manager) publishStateChange(sourceID int, from, to model.CameraState) {
	m.bus.Publish(events.EventSourceStateChanged, map[string]interface{}{
		"source_id": sourceID,
		"from":      string(from),
		"to":        string(to),
	})
}

func (m *Manager) sourceByID(id int) Source {
	for _, s := range m.sources {
		if s.ID() == id {
			return s
		}
	}
	return nil
}
