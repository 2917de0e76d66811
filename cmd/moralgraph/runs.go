package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenthands/moralgraph/internal/core/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List deduplication runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		runs, err := st.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No deduplication runs yet")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%-6s %-10s %-12s %-20s %s\n", "ID", "GENERATION", "STATE", "CREATED", "FINISHED")
		for _, r := range runs {
			state := yellow(fmt.Sprintf("%-12s", r.State))
			if r.State == model.RunFinished {
				state = green(fmt.Sprintf("%-12s", r.State))
			}
			finished := "-"
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-6d %-10d %s %-20s %s\n", r.ID, r.GenerationID, state, r.CreatedAt.Format("2006-01-02 15:04:05"), finished)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
