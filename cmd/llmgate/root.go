package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"llmgate/internal/backend/llamaserver"
	"llmgate/internal/config"
)

// options are the command line overrides. Empty values leave the file and
// environment settings alone.
type options struct {
	configPath  string
	addr        string
	model       string
	backendURL  string
	llamaBin    string
	logLevel    string
	engineName  string
	stepTimeout string
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "llmgate",
		Short:         "Streaming gateway in front of a local llama.cpp server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	f.StringVar(&opts.addr, "addr", "", "HTTP listen address (default 0.0.0.0:8081, or PORT)")
	f.StringVarP(&opts.model, "model", "m", "", "Model file or directory of .gguf files (MLX_MODEL_PATH)")
	f.StringVar(&opts.backendURL, "backend-url", "", "Attach to a running llama-server instead of spawning one")
	f.StringVar(&opts.llamaBin, "llama-bin", "", "Path to the llama-server binary (auto-detected when empty)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	f.StringVar(&opts.engineName, "engine-name", "", "Engine label reported by /health and /metrics")
	f.StringVar(&opts.stepTimeout, "step-timeout", "", "Per-token backend deadline, e.g. 30s (0 disables)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "llmgate", version)
		},
	}
	root.AddCommand(serve, versionCmd)
	return root
}

func runServe(cmd *cobra.Command, opts options) error {
	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, nil)
}

// loadConfig layers defaults, the config file, the environment and flags, in
// that order, and validates the result.
func loadConfig(opts options, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		fc, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, &config.ConfigError{Err: fmt.Errorf("load %s: %w", opts.configPath, err)}
		}
		cfg = cfg.Merge(fc)
	}
	cfg, err := cfg.ApplyEnv(getenv)
	if err != nil {
		return cfg, &config.ConfigError{Err: err}
	}
	override := config.Config{
		Addr:       opts.addr,
		ModelPath:  opts.model,
		BackendURL: opts.backendURL,
		LlamaBin:   opts.llamaBin,
		LogLevel:   opts.logLevel,
		EngineName: opts.engineName,
	}
	if opts.stepTimeout != "" {
		if err := override.StepTimeout.UnmarshalText([]byte(opts.stepTimeout)); err != nil {
			return cfg, &config.ConfigError{Err: fmt.Errorf("--step-timeout: %w", err)}
		}
	}
	cfg = cfg.Merge(override)
	if cfg.BackendURL == "" && cfg.LlamaBin == "" {
		cfg.LlamaBin = llamaserver.DiscoverBinary()
	}
	return cfg, cfg.Validate()
}
