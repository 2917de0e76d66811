package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/moralgraph/internal/app"
)

var embedGenerationID int64

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute missing embeddings of a generation's cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		genID, err := resolveGeneration(ctx, st, embedGenerationID)
		if err != nil {
			return err
		}

		chat, embedder, closeCache, err := app.Models(ctx, cfg, logg)
		if err != nil {
			return err
		}
		defer closeCache()

		n, err := app.NewPipeline(cfg, st, chat, embedder, logg).EmbedCards(ctx, genID)
		if err != nil {
			return err
		}
		fmt.Printf("Embedded %d cards of generation %d\n", n, genID)
		return nil
	},
}

func init() {
	embedCmd.Flags().Int64Var(&embedGenerationID, "generation_id", 0, "Generation to embed (default: latest)")
	rootCmd.AddCommand(embedCmd)
}
