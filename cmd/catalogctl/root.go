package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfman30/jewelry-concierge/internal/app/bootstrap"
	"github.com/wolfman30/jewelry-concierge/internal/catalog"
	appconfig "github.com/wolfman30/jewelry-concierge/internal/config"
	"github.com/wolfman30/jewelry-concierge/internal/conversation"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// backends opens the stores a command needs. Each opener returns a close
// func that is always safe to call.
type backends struct {
	catalog   func(ctx context.Context, writable bool) (catalog.Repository, func(), error)
	knowledge func(ctx context.Context) (conversation.KnowledgeRepository, func(), error)
}

func newBackends(cfg *appconfig.Config, logger *logging.Logger) backends {
	return backends{
		catalog: func(ctx context.Context, writable bool) (catalog.Repository, func(), error) {
			pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, nil, err
			}
			if pool != nil {
				return catalog.NewPostgresRepository(pool), pool.Close, nil
			}
			if writable {
				return nil, nil, errors.New("DATABASE_URL is required to write the catalog")
			}
			f, err := os.Open(cfg.CatalogFile)
			if err != nil {
				return nil, nil, fmt.Errorf("open catalog file: %w", err)
			}
			defer f.Close()
			products, err := catalog.LoadProducts(f)
			if err != nil {
				return nil, nil, err
			}
			return catalog.NewInMemoryRepository(products...), func() {}, nil
		},
		knowledge: func(ctx context.Context) (conversation.KnowledgeRepository, func(), error) {
			client := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
			if client == nil {
				return nil, nil, errors.New("a reachable REDIS_ADDR is required for knowledge commands")
			}
			return conversation.NewRedisKnowledgeRepository(client), func() { _ = client.Close() }, nil
		},
	}
}

func newRootCmd(b backends) *cobra.Command {
	root := &cobra.Command{
		Use:          "catalogctl",
		Short:        "Manage the jewelry catalog and brand knowledge",
		SilenceUsage: true,
	}
	root.AddCommand(
		newSeedCmd(b),
		newListCmd(b),
		newMatchCmd(b),
		newIngestCmd(b),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
