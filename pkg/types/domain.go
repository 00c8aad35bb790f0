package types

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// One of ready, loading, failed.
	// example: ready
	Status string `json:"status" example:"ready"`
	// Engine name.
	// example: llmgate-llama.cpp
	Engine string `json:"engine" example:"llmgate-llama.cpp"`
	// Load error when status is failed.
	Error string `json:"error,omitempty"`
}

// SystemMetrics are host and process readouts. VRAM figures are estimates
// derived from the backend resident set size.
type SystemMetrics struct {
	VRAMTotal   float64 `json:"vramTotal" example:"8589934592"`
	VRAMUsed    float64 `json:"vramUsed" example:"4294967296"`
	SysMemTotal uint64  `json:"sysMemTotal" example:"34359738368"`
	SysMemUsed  uint64  `json:"sysMemUsed" example:"17179869184"`
	CPUCores    int     `json:"cpuCores" example:"10"`
	ProcCPUSec  float64 `json:"procCpuSec" example:"12.5"`
}

// MetricsSnapshot is returned by GET /metrics and pushed on /metrics/stream.
type MetricsSnapshot struct {
	Ready       bool   `json:"ready" example:"true"`
	Processing  bool   `json:"processing" example:"false"`
	QueueLength int    `json:"queueLength" example:"0"`
	Engine      string `json:"engine" example:"llmgate-llama.cpp"`
	SystemMetrics
	// Tokens per second of the running generation; 0 when idle.
	TPS float64 `json:"tps" example:"42.1"`
	// Tokens generated since start.
	PredictedTotal int64 `json:"predictedTotal" example:"12345"`
}

// MetricsFrame is one /metrics/stream message.
type MetricsFrame struct {
	Type string `json:"type" example:"metrics"`
	MetricsSnapshot
}

// LogFrame is one /logs/stream message.
type LogFrame struct {
	Type string `json:"type" example:"log"`
	Text string `json:"text" example:"Generation completed: 42 tokens"`
}
