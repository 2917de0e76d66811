package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthands/moralgraph/internal/graphfile"
)

var (
	exportRunID int64
	exportOut   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the canonical graph of a run as moral graph JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		runID := exportRunID
		if runID == 0 {
			run, err := st.LatestFinishedRun(ctx)
			if err != nil {
				return fmt.Errorf("no finished deduplication run: %w", err)
			}
			runID = run.ID
		}

		g, err := graphfile.Export(ctx, st, runID)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}
		if err := graphfile.Write(w, g); err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Printf("Wrote run %d (%d values, %d edges) to %s\n", runID, len(g.Values), len(g.Edges), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportRunID, "run", 0, "Run to export (default: latest finished)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
