package detect

import (
	"context"

	"github.com/smarttraffic/trafficd/internal/model"
)

// StaticDetector returns fixed counts for every frame. It backs offline runs
// and tests where no detection service is available.
type StaticDetector struct {
	counts model.VehicleCounts
}

func NewStaticDetector(counts map[model.VehicleType]int) *StaticDetector {
	fixed := model.VehicleCounts{}
	for t, n := range counts {
		fixed[t] = n
	}
	return &StaticDetector{counts: fixed}
}

func (d *StaticDetector) Detect(ctx context.Context, frame *model.Frame) (model.VehicleCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.DetectionError{SourceID: frame.SourceID, Err: err}
	}
	if err := d.counts.Validate(); err != nil {
		return nil, &model.DetectionError{SourceID: frame.SourceID, Err: err}
	}
	return d.counts.Clone(), nil
}

func (d *StaticDetector) Health(ctx context.Context) error { return nil }
