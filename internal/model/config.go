package model

type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Timing   TimingConfig   `yaml:"timing"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	History  HistoryConfig  `yaml:"history"`
	Cycle    CycleConfig    `yaml:"cycle"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// TimingConfig is the immutable signal timing configuration.
// Invariant (checked at load): 0 < min_green ≤ base_green ≤ max_green,
// all weights ≥ 0.
type TimingConfig struct {
	MinGreen          int                     `yaml:"min_green"`
	MaxGreen          int                     `yaml:"max_green"`
	BaseGreen         int                     `yaml:"base_green"`
	VehicleMultiplier float64                 `yaml:"vehicle_multiplier"`
	YellowTime        int                     `yaml:"yellow_time"`
	AllRedTime        int                     `yaml:"all_red_time"`
	Weights           map[VehicleType]float64 `yaml:"weights"`

	// Adaptive algorithm parameters. Alpha is the fixed blend weight toward
	// the live linear estimate; HistoryWindow bounds how many records the
	// historical mean reads.
	Alpha         float64 `yaml:"alpha"`
	HistoryWindow int     `yaml:"history_window"`
}

// Weight returns the priority weight for a vehicle type, defaulting to 1.0
// for types the config does not mention.
func (tc TimingConfig) Weight(t VehicleType) float64 {
	if w, ok := tc.Weights[t]; ok {
		return w
	}
	return 1.0
}

type CameraConfig struct {
	Sources []SourceConfig `yaml:"sources"`

	MaxAttempts        int `yaml:"max_attempts"`         // per-source retries per acquire
	RetryDelayMs       int `yaml:"retry_delay_ms"`       // backoff between attempts
	AttemptTimeoutSec  int `yaml:"attempt_timeout_sec"`  // bound on one grab
	FailureThreshold   int `yaml:"failure_threshold"`    // consecutive failures → failed
	ReprobeCooldownSec int `yaml:"reprobe_cooldown_sec"` // failed source re-probe delay

	QueueSize       int     `yaml:"queue_size"`           // continuous mode frame queue
	CaptureInterval float64 `yaml:"capture_interval_sec"` // continuous producer cadence
}

type SourceConfig struct {
	Index    int    `yaml:"index"`
	Kind     string `yaml:"kind"` // "directory" or "synthetic"
	SpoolDir string `yaml:"spool_dir,omitempty"`
	Width    int    `yaml:"width,omitempty"`
	Height   int    `yaml:"height,omitempty"`
}

type DetectorConfig struct {
	Kind                string  `yaml:"kind"` // "http" or "static"
	BaseURL             string  `yaml:"base_url"`
	TimeoutSec          int     `yaml:"timeout_sec"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NMSThreshold        float64 `yaml:"nms_threshold"`

	// StaticCounts feeds the static detector in offline runs and tests.
	StaticCounts map[VehicleType]int `yaml:"static_counts,omitempty"`
}

type HistoryConfig struct {
	Backend         string `yaml:"backend"` // "file", "postgres", or "memory"
	File            string `yaml:"file"`
	PostgresURL     string `yaml:"postgres_url,omitempty"`
	AggregateWindow int    `yaml:"aggregate_window"` // recent cycles in summaries
}

type CycleConfig struct {
	Mode        string  `yaml:"mode"` // "single" or "continuous"
	IntervalSec float64 `yaml:"interval_sec"`
	MaxCycles   int     `yaml:"max_cycles"` // 0 = run until signalled
	Algorithm   Algorithm `yaml:"algorithm"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}
