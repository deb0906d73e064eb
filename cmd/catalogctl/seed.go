package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
)

func newSeedCmd(b backends) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.json>",
		Short: "Upsert every product in a JSON file into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			products, err := catalog.LoadProducts(f)
			if err != nil {
				return err
			}

			repo, closeRepo, err := b.catalog(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeRepo()

			for i := range products {
				if err := repo.Upsert(cmd.Context(), &products[i]); err != nil {
					return fmt.Errorf("upsert %s: %w", products[i].ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", len(products))
			return nil
		},
	}
}
