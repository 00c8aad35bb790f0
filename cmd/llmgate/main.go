package main

import (
	"os"

	"llmgate/internal/config"
	"llmgate/internal/logx"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if config.IsConfigError(err) {
			logx.Log.Error().Err(err).Msg("startup aborted")
			os.Exit(2)
		}
		logx.Log.Error().Err(err).Msg("llmgate failed")
		os.Exit(1)
	}
}
