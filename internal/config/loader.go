package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llmgate/internal/common/fsutil"
)

// Duration is a time.Duration that reads "500ms"-style strings from every
// supported config format.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds runtime parameters for the gateway.
type Config struct {
	Addr       string `json:"addr" yaml:"addr" toml:"addr"`
	EngineName string `json:"engine_name" yaml:"engine_name" toml:"engine_name"`
	ModelPath  string `json:"model_path" yaml:"model_path" toml:"model_path"`

	// BackendURL attaches to a running llama-server instead of spawning one.
	BackendURL     string   `json:"backend_url" yaml:"backend_url" toml:"backend_url"`
	BackendAPIKey  string   `json:"backend_api_key" yaml:"backend_api_key" toml:"backend_api_key"`
	LlamaBin       string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaHost      string   `json:"llama_host" yaml:"llama_host" toml:"llama_host"`
	LlamaPortStart int      `json:"llama_port_start" yaml:"llama_port_start" toml:"llama_port_start"`
	LlamaPortEnd   int      `json:"llama_port_end" yaml:"llama_port_end" toml:"llama_port_end"`
	LlamaCtxSize   int      `json:"llama_ctx_size" yaml:"llama_ctx_size" toml:"llama_ctx_size"`
	LlamaNGL       int      `json:"llama_ngl" yaml:"llama_ngl" toml:"llama_ngl"`
	LlamaThreads   int      `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaExtraArgs []string `json:"llama_extra_args" yaml:"llama_extra_args" toml:"llama_extra_args"`
	ReadyTimeout   Duration `json:"ready_timeout" yaml:"ready_timeout" toml:"ready_timeout"`

	MaxBodyBytes    int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	LogLevel        string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogCapacity     int      `json:"log_capacity" yaml:"log_capacity" toml:"log_capacity"`
	LogBacklog      int      `json:"log_backlog" yaml:"log_backlog" toml:"log_backlog"`
	MetricsInterval Duration `json:"metrics_interval" yaml:"metrics_interval" toml:"metrics_interval"`
	StepTimeout     Duration `json:"step_timeout" yaml:"step_timeout" toml:"step_timeout"`

	CORSEnabled        *bool    `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`

	LogRedisURL string `json:"log_redis_url" yaml:"log_redis_url" toml:"log_redis_url"`
	LogRedisKey string `json:"log_redis_key" yaml:"log_redis_key" toml:"log_redis_key"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	enabled := true
	return Config{
		Addr:               "0.0.0.0:8081",
		EngineName:         "llmgate-llama.cpp",
		ModelPath:          "./models",
		LlamaHost:          "127.0.0.1",
		ReadyTimeout:       Duration(10 * time.Minute),
		MaxBodyBytes:       1 << 20,
		LogLevel:           "info",
		LogCapacity:        1000,
		LogBacklog:         100,
		MetricsInterval:    Duration(500 * time.Millisecond),
		CORSEnabled:        &enabled,
		CORSAllowedOrigins: []string{"*"},
		LogRedisKey:        "llmgate:logs",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of o onto c.
func (c Config) Merge(o Config) Config {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setDur := func(dst *Duration, v Duration) {
		if v != 0 {
			*dst = v
		}
	}
	setStr(&c.Addr, o.Addr)
	setStr(&c.EngineName, o.EngineName)
	setStr(&c.ModelPath, o.ModelPath)
	setStr(&c.BackendURL, o.BackendURL)
	setStr(&c.BackendAPIKey, o.BackendAPIKey)
	setStr(&c.LlamaBin, o.LlamaBin)
	setStr(&c.LlamaHost, o.LlamaHost)
	setInt(&c.LlamaPortStart, o.LlamaPortStart)
	setInt(&c.LlamaPortEnd, o.LlamaPortEnd)
	setInt(&c.LlamaCtxSize, o.LlamaCtxSize)
	setInt(&c.LlamaNGL, o.LlamaNGL)
	setInt(&c.LlamaThreads, o.LlamaThreads)
	if len(o.LlamaExtraArgs) > 0 {
		c.LlamaExtraArgs = o.LlamaExtraArgs
	}
	setDur(&c.ReadyTimeout, o.ReadyTimeout)
	if o.MaxBodyBytes != 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	setStr(&c.LogLevel, o.LogLevel)
	setInt(&c.LogCapacity, o.LogCapacity)
	setInt(&c.LogBacklog, o.LogBacklog)
	setDur(&c.MetricsInterval, o.MetricsInterval)
	setDur(&c.StepTimeout, o.StepTimeout)
	if o.CORSEnabled != nil {
		c.CORSEnabled = o.CORSEnabled
	}
	if len(o.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = o.CORSAllowedOrigins
	}
	setStr(&c.LogRedisURL, o.LogRedisURL)
	setStr(&c.LogRedisKey, o.LogRedisKey)
	return c
}

// ApplyEnv overlays LLMGATE_* variables. MLX_MODEL_PATH and PORT are read
// for compatibility with existing launch scripts; the LLMGATE_ names win.
func (c Config) ApplyEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("MLX_MODEL_PATH"); v != "" {
		c.ModelPath = v
	}
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return c, fmt.Errorf("PORT: %w", err)
		}
		c.Addr = "0.0.0.0:" + v
	}
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv("LLMGATE_" + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv("LLMGATE_" + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("LLMGATE_%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v := getenv("LLMGATE_" + key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("LLMGATE_%s: %w", key, err))
			}
		}
	}
	str("ADDR", &c.Addr)
	str("ENGINE_NAME", &c.EngineName)
	str("MODEL_PATH", &c.ModelPath)
	str("BACKEND_URL", &c.BackendURL)
	str("BACKEND_API_KEY", &c.BackendAPIKey)
	str("LLAMA_BIN", &c.LlamaBin)
	str("LLAMA_HOST", &c.LlamaHost)
	num("LLAMA_PORT_START", &c.LlamaPortStart)
	num("LLAMA_PORT_END", &c.LlamaPortEnd)
	num("LLAMA_CTX_SIZE", &c.LlamaCtxSize)
	num("LLAMA_NGL", &c.LlamaNGL)
	num("LLAMA_THREADS", &c.LlamaThreads)
	if v := getenv("LLMGATE_LLAMA_EXTRA_ARGS"); v != "" {
		c.LlamaExtraArgs = strings.Fields(v)
	}
	dur("READY_TIMEOUT", &c.ReadyTimeout)
	if v := getenv("LLMGATE_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLMGATE_MAX_BODY_BYTES: %w", err))
		} else {
			c.MaxBodyBytes = n
		}
	}
	str("LOG_LEVEL", &c.LogLevel)
	num("LOG_CAPACITY", &c.LogCapacity)
	num("LOG_BACKLOG", &c.LogBacklog)
	dur("METRICS_INTERVAL", &c.MetricsInterval)
	dur("STEP_TIMEOUT", &c.StepTimeout)
	if v := getenv("LLMGATE_CORS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLMGATE_CORS_ENABLED: %w", err))
		} else {
			c.CORSEnabled = &b
		}
	}
	if v := getenv("LLMGATE_CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}
	str("LOG_REDIS_URL", &c.LogRedisURL)
	str("LOG_REDIS_KEY", &c.LogRedisKey)
	return c, errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CORS reports whether CORS is enabled.
func (c Config) CORS() bool { return c.CORSEnabled == nil || *c.CORSEnabled }

// Validate checks the configuration before startup. An attached backend owns
// its model, so model_path is only checked when llama-server is spawned.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		if strings.TrimSpace(c.ModelPath) == "" {
			errs = append(errs, errors.New("model_path is required"))
		} else if p, err := fsutil.ExpandPath(c.ModelPath); err != nil || !fsutil.PathExists(p) {
			errs = append(errs, fmt.Errorf("model_path not found: %s", c.ModelPath))
		}
		if c.LlamaBin == "" {
			errs = append(errs, errors.New("llama_bin not set and llama-server not found; set llama_bin or backend_url"))
		} else if !fsutil.PathExists(c.LlamaBin) {
			errs = append(errs, fmt.Errorf("llama_bin not found: %s", c.LlamaBin))
		}
	}
	if c.LlamaPortStart < 0 || c.LlamaPortEnd < 0 || (c.LlamaPortEnd > 0 && c.LlamaPortEnd < c.LlamaPortStart) {
		errs = append(errs, fmt.Errorf("invalid llama port range %d-%d", c.LlamaPortStart, c.LlamaPortEnd))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, errors.New("log_capacity must be positive"))
	}
	if c.LogBacklog < 0 {
		errs = append(errs, errors.New("log_backlog must not be negative"))
	}
	if c.StepTimeout < 0 || c.MetricsInterval < 0 || c.ReadyTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// ConfigError is a fatal startup configuration problem.
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return "invalid config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
