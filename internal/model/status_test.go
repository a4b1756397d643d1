package model

import "testing"

func TestValidCameraTransition(t *testing.T) {
	tests := []struct {
		from, to CameraState
		want     bool
	}{
		{CameraHealthy, CameraDegraded, true},
		{CameraDegraded, CameraFailed, true},
		{CameraDegraded, CameraHealthy, true},
		{CameraFailed, CameraHealthy, true},
		{CameraHealthy, CameraFailed, false}, // must pass through degraded
		{CameraFailed, CameraDegraded, false},
		{CameraHealthy, CameraHealthy, false},
	}

	for _, tt := range tests {
		if got := ValidCameraTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidCameraTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidCycleTransition(t *testing.T) {
	tests := []struct {
		from, to CycleState
		want     bool
	}{
		{CycleIdle, CycleCapturing, true},
		{CycleCapturing, CycleDetecting, true},
		{CycleCapturing, CycleSleeping, true}, // skipped cycle
		{CycleDetecting, CycleComputingTiming, true},
		{CycleDetecting, CycleSleeping, true},
		{CycleComputingTiming, CyclePersisting, true},
		{CycleComputingTiming, CycleTerminated, true}, // fatal config failure
		{CyclePersisting, CycleIdle, true},
		{CyclePersisting, CycleSleeping, true},
		{CycleSleeping, CycleIdle, true},
		{CycleSleeping, CycleTerminated, true},

		{CycleIdle, CycleDetecting, false},
		{CycleCapturing, CyclePersisting, false},
		{CycleTerminated, CycleIdle, false},
		{CyclePersisting, CycleCapturing, false},
	}

	for _, tt := range tests {
		if got := ValidCycleTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidCycleTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
