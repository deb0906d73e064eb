package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/jewelry-concierge/internal/conversation"
)

func newIngestCmd(b backends) *cobra.Command {
	var namespace string
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest <snippets.json>",
		Short: "Store brand, policy and sizing notes for retrieval",
		Long:  "Reads a JSON array of strings. Running servers pick up appended notes on the next query; --replace needs a restart.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			docs, err := conversation.LoadDocuments(f)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("%s contains no snippets", args[0])
			}

			repo, closeRepo, err := b.knowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			namespace = strings.TrimSpace(namespace)
			if replace {
				err = repo.ReplaceDocuments(cmd.Context(), namespace, docs)
			} else {
				err = repo.AppendDocuments(cmd.Context(), namespace, docs)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d snippets in %q\n", len(docs), namespace)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", conversation.NamespaceBrand, "Knowledge namespace")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the namespace instead of appending")
	return cmd
}
