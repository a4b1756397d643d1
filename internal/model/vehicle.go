// Package model defines the data structures for trafficd's configuration,
// detection results, signal timing, and persisted cycle records.
package model

import "fmt"

type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBus        VehicleType = "bus"
	VehicleTruck      VehicleType = "truck"
)

// VehicleTypes lists every type the detector may report, in stable order.
var VehicleTypes = []VehicleType{VehicleCar, VehicleMotorcycle, VehicleBus, VehicleTruck}

var validVehicleTypes = map[VehicleType]bool{
	VehicleCar:        true,
	VehicleMotorcycle: true,
	VehicleBus:        true,
	VehicleTruck:      true,
}

// Valid reports whether t is a vehicle type the controller knows about.
func (t VehicleType) Valid() bool {
	return validVehicleTypes[t]
}

// VehicleCounts holds per-type vehicle counts for one frame.
// Immutable once produced by the detection adapter; lifetime is one cycle.
type VehicleCounts map[VehicleType]int

// Total returns the sum of all per-type counts.
func (vc VehicleCounts) Total() int {
	total := 0
	for _, n := range vc {
		total += n
	}
	return total
}

// Validate rejects unknown vehicle types and negative counts.
// Negative counts indicate a detector fault, not empty traffic, so they are
// surfaced as ErrInvalidInput rather than silently zeroed.
func (vc VehicleCounts) Validate() error {
	for t, n := range vc {
		if !validVehicleTypes[t] {
			return fmt.Errorf("%w: unknown vehicle type %q", ErrInvalidInput, t)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative count %d for %s", ErrInvalidInput, n, t)
		}
	}
	return nil
}

// Clone returns an independent copy of the counts.
func (vc VehicleCounts) Clone() VehicleCounts {
	out := make(VehicleCounts, len(vc))
	for t, n := range vc {
		out[t] = n
	}
	return out
}
