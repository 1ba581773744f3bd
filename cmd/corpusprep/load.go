package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/diary-persona-chat/internal/bootstrap"
	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/corpusfile"
)

func newLoadCmd() *cobra.Command {
	var noPublish bool
	cmd := &cobra.Command{
		Use:   "load <chunks.csv|chunks.xlsx>",
		Short: "Upsert chunks into Postgres and request vector indexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := corpusfile.ReadFile(args[0])
			if err != nil {
				return err
			}

			app, err := bootstrap.NewCorpus(cmd.Context(), config.Load(), !noPublish)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.LoadUC.Load(cmd.Context(), chunks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d chunks from %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "Store chunks without publishing index events")
	return cmd
}
