package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/moralgraph/internal/graphfile"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a moral graph JSON file as a new generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		g, err := graphfile.ReadFile(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		genID, err := graphfile.Import(ctx, st, g)
		if err != nil {
			return err
		}
		logg.Info("imported graph", "generation_id", genID, "values", len(g.Values), "edges", len(g.Edges))
		fmt.Printf("Imported %d values and %d edges as generation %d\n", len(g.Values), len(g.Edges), genID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
