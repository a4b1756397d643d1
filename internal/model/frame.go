package model

import "time"

// Frame is one captured camera image. Data is an opaque encoded image buffer;
// decoding is the detector's concern.
type Frame struct {
	ID         string
	SourceID   int
	CapturedAt time.Time
	Width      int
	Height     int
	Data       []byte
}
