package engine

import "time"

// Request defaults applied to omitted fields.
const (
	DefaultMaxTokens     = 512
	DefaultTemperature   = 0.7
	DefaultTopP          = 0.95
	DefaultMinP          = 0.0
	DefaultRepeatPenalty = 1.1
	DefaultRepeatLastN   = 64
)

const (
	defaultEngineName       = "llmgate-llama.cpp"
	defaultProgressInterval = 2 * time.Second
	defaultMetricsTimeout   = time.Second
)

// Config holds Engine tunables.
type Config struct {
	// EngineName is reported by /health and /metrics.
	EngineName string
	// ModelPath is resolved to a model file before loading.
	ModelPath string
	// Remote marks an attached backend. The path is then informational and
	// may not exist locally.
	Remote bool
	// StepTimeout bounds each backend step; 0 disables it.
	StepTimeout time.Duration
	// ProgressInterval is the load progress log period.
	ProgressInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.EngineName == "" {
		c.EngineName = defaultEngineName
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	return c
}
