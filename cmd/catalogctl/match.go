package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
	"github.com/wolfman30/jewelry-concierge/internal/preferences"
)

func newMatchCmd(b backends) *cobra.Command {
	values := map[preferences.Field]*string{}
	flag := func(cmd *cobra.Command, name string, field preferences.Field, usage string) {
		v := new(string)
		values[field] = v
		cmd.Flags().StringVar(v, name, "", usage)
	}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run the rule matcher against the live catalog",
		Long:  "Builds a preference record from flags and prints the match result the concierge would act on.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec preferences.Record
			for _, field := range preferences.AllFields {
				if v, ok := values[field]; ok {
					rec.Apply(field, *v)
				}
			}
			if !rec.IsSet(preferences.FieldCategory) {
				return errors.New("--category is required")
			}

			repo, closeRepo, err := b.catalog(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeRepo()

			products, err := repo.ListAvailable(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), catalog.NewRuleMatcher().Match(rec, products))
		},
	}
	flag(cmd, "category", preferences.FieldCategory, "Jewelry category, e.g. rings")
	flag(cmd, "metal", preferences.FieldMetalType, "Metal, e.g. rose gold")
	flag(cmd, "stone", preferences.FieldStoneType, "Stone, e.g. ruby or none")
	flag(cmd, "gender", preferences.FieldGender, "Wearer gender: male or female")
	flag(cmd, "budget", preferences.FieldBudgetRange, "Budget, e.g. \"under 2k\"")
	return cmd
}
