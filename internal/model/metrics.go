package model

// Metrics is the daemon's counter snapshot, persisted to the state directory
// so skipped cycles can be diagnosed after the fact.
type Metrics struct {
	SchemaVersion int             `yaml:"schema_version"`
	FileType      string          `yaml:"file_type"`
	Counters      MetricsCounters `yaml:"counters"`
	UpdatedAt     *string         `yaml:"updated_at"`
}

type MetricsCounters struct {
	CyclesCompleted   int `yaml:"cycles_completed"`
	CyclesSkipped     int `yaml:"cycles_skipped"`
	CaptureFailures   int `yaml:"capture_failures"`
	DetectionFailures int `yaml:"detection_failures"`
	InvalidCounts     int `yaml:"invalid_counts"`
	PersistFailures   int `yaml:"persist_failures"`
	Failovers         int `yaml:"failovers"`
	FramesDropped     int `yaml:"frames_dropped"`
}
