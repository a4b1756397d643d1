package camera

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smarttraffic/trafficd/internal/model"
)

// SyntheticSource generates deterministic test-pattern frames. It stands in
// for real camera hardware in offline runs and tests.
type SyntheticSource struct {
	index   int
	width   int
	height  int
	counter atomic.Uint64
}

func NewSyntheticSource(index, width, height int) *SyntheticSource {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &SyntheticSource{index: index, width: width, height: height}
}

func (s *SyntheticSource) ID() int { return s.index }

// Grab produces a grayscale PGM frame with a moving gradient so successive
// frames differ.
func (s *SyntheticSource) Grab(ctx context.Context) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := s.counter.Add(1)
	header := fmt.Sprintf("P5\n%d %d\n255\n", s.width, s.height)
	data := make([]byte, len(header)+s.width*s.height)
	copy(data, header)

	pixels := data[len(header):]
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			pixels[y*s.width+x] = byte((x + y + int(n)) % 256)
		}
	}

	return &model.Frame{
		ID:         uuid.New().String(),
		SourceID:   s.index,
		CapturedAt: time.Now().UTC(),
		Width:      s.width,
		Height:     s.height,
		Data:       data,
	}, nil
}
