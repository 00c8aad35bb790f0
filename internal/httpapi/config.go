package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// Stream settings for the WebSocket observers.
var (
	logBacklog      = 100
	metricsInterval = 500 * time.Millisecond
	wsWriteTimeout  = 10 * time.Second
)

// SetStreamOptions sets how many buffered log lines a new log subscriber
// receives and the metrics push period. Non-positive values keep the defaults.
func SetStreamOptions(backlog int, interval time.Duration) {
	if backlog > 0 {
		logBacklog = backlog
	}
	if interval > 0 {
		metricsInterval = interval
	}
}

// CORS configuration. If disabled, no CORS middleware is added and
// WebSocket upgrades are limited to same-origin requests.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
}
