package main

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/schoolhouse/pkg/config"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "schoolhouse: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"storage":  cfg.Storage.Type,
		"auth":     cfg.Auth.Mode,
		"provider": cfg.IdentityProvider.Type,
	}).Info("starting schoolhouse")

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.WithError(err).Error("schoolhouse stopped with error")
		os.Exit(1)
	}
}
