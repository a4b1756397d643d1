// Package detect adapts external vehicle detection services. The controller
// never runs inference itself; it sends frames out and normalizes whatever
// comes back into vehicle counts.
package detect

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/model"
)

// Detector counts vehicles in a single frame.
type Detector interface {
	// Detect returns per-type vehicle counts for the frame. Errors are
	// recoverable from the cycle loop's point of view.
	Detect(ctx context.Context, frame *model.Frame) (model.VehicleCounts, error)
	// Health reports whether the backing service is reachable.
	Health(ctx context.Context) error
}

// New builds the configured detector.
func New(cfg model.DetectorConfig, logger *logrus.Logger) (Detector, error) {
	switch cfg.Kind {
	case "http":
		return NewHTTPDetector(cfg, logger), nil
	case "static":
		return NewStaticDetector(cfg.StaticCounts), nil
	default:
		return nil, &model.ConfigError{
			Field: "detector.kind",
			Err:   fmt.Errorf("unknown detector kind %q", cfg.Kind),
		}
	}
}
