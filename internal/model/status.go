package model

// CameraState tracks the health of one configured camera source.
// Mutated only by the capture manager; any successful grab resets to healthy.
type CameraState string

const (
	CameraHealthy  CameraState = "healthy"
	CameraDegraded CameraState = "degraded"
	CameraFailed   CameraState = "failed"
)

// Camera health transitions: healthy → degraded → failed, and any state back
// to healthy on a successful capture. Failed sources are skipped for a
// cooldown only; they are never permanently excluded.
var validCameraTransitions = map[CameraState]map[CameraState]bool{
	CameraHealthy: {
		CameraDegraded: true,
	},
	CameraDegraded: {
		CameraHealthy: true,
		CameraFailed:  true,
	},
	CameraFailed: {
		CameraHealthy: true,
	},
}

func ValidCameraTransition(from, to CameraState) bool {
	return validCameraTransitions[from][to]
}

// CycleState is the orchestrator's position within one decision cycle.
type CycleState string

const (
	CycleIdle            CycleState = "idle"
	CycleCapturing       CycleState = "capturing"
	CycleDetecting       CycleState = "detecting"
	CycleComputingTiming CycleState = "computing_timing"
	CyclePersisting      CycleState = "persisting"
	CycleSleeping        CycleState = "sleeping"
	CycleTerminated      CycleState = "terminated"
)

// Cycle traversal: idle → capturing → detecting → computing_timing →
// persisting → (idle | sleeping | terminated). A capture or detection
// failure short-circuits back to sleeping (skipped cycle) without passing
// through the later phases.
var validCycleTransitions = map[CycleState]map[CycleState]bool{
	CycleIdle: {
		CycleCapturing:  true,
		CycleTerminated: true,
	},
	CycleCapturing: {
		CycleDetecting:  true,
		CycleSleeping:   true, // capture failed → skip cycle
		CycleTerminated: true,
	},
	CycleDetecting: {
		CycleComputingTiming: true,
		CycleSleeping:        true, // detection failed → skip cycle
		CycleTerminated:      true,
	},
	CycleComputingTiming: {
		CyclePersisting: true,
		CycleSleeping:   true, // invalid counts → skip cycle
		CycleTerminated: true, // config-class failure is fatal
	},
	CyclePersisting: {
		CycleIdle:       true,
		CycleSleeping:   true,
		CycleTerminated: true,
	},
	CycleSleeping: {
		CycleIdle:       true,
		CycleTerminated: true,
	},
}

func ValidCycleTransition(from, to CycleState) bool {
	return validCycleTransitions[from][to]
}

// SkipReason classifies why a cycle produced no record.
type SkipReason string

const (
	SkipCaptureFailed   SkipReason = "capture_failed"
	SkipDetectionFailed SkipReason = "detection_failed"
	SkipInvalidCounts   SkipReason = "invalid_counts"
	SkipPersistFailed   SkipReason = "persist_failed"
)
