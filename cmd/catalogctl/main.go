// Command catalogctl is the operator CLI for the product catalog and the
// brand knowledge used by the concierge.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/jewelry-concierge/internal/config"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, "text", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newBackends(cfg, logger)).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
