package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/diary-persona-chat/internal/bootstrap"
	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/corpusfile"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <chunks.xlsx>",
		Short: "Write the stored corpus to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.NewCorpus(cmd.Context(), config.Load(), false)
			if err != nil {
				return err
			}
			defer app.Close()

			chunks, err := app.Repo.ListChunks(cmd.Context())
			if err != nil {
				return err
			}
			if err := corpusfile.WriteXLSXFile(args[0], chunks); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d chunks to %s\n", len(chunks), args[0])
			return nil
		},
	}
}
