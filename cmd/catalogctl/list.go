package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
)

func newListCmd(b backends) *cobra.Command {
	var category string
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List in-stock products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeRepo, err := b.catalog(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeRepo()

			products, err := repo.ListAvailable(cmd.Context())
			if err != nil {
				return err
			}
			if category = strings.TrimSpace(category); category != "" {
				filtered := products[:0]
				for _, p := range products {
					if strings.EqualFold(p.Category, category) {
						filtered = append(filtered, p)
					}
				}
				products = filtered
			}

			out := cmd.OutOrStdout()
			if idsOnly {
				for _, p := range products {
					fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Name, p.Price())
				}
				return nil
			}
			if products == nil {
				products = []catalog.Product{}
			}
			return writeJSON(out, products)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list this category")
	cmd.Flags().BoolVar(&idsOnly, "ids-only", false, "Print id, name and price per line")
	return cmd
}
