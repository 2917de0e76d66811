package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenthands/moralgraph/internal/app"
	"github.com/agenthands/moralgraph/internal/core"
	"github.com/agenthands/moralgraph/internal/core/dedupe"
)

var dedupeGenerationID int64

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Deduplicate a generation into a canonical graph",
	Long: `Embed the cards of a generation, then deduplicate its contexts, cards
and edges. An IN_PROGRESS run is continued instead of starting a new one.

Without --generation_id the latest imported generation is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		genID, err := resolveGeneration(ctx, st, dedupeGenerationID)
		if err != nil {
			return err
		}

		chat, embedder, closeCache, err := app.Models(ctx, cfg, logg)
		if err != nil {
			return err
		}
		defer closeCache()

		pipeline := app.NewPipeline(cfg, st, chat, embedder, logg)
		stats, err := pipeline.Run(ctx, genID)
		if stats != nil {
			printStats(stats)
		}
		if errors.Is(err, core.ErrIncompleteRun) || errors.Is(err, dedupe.ErrContextsUnresolved) {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s run %d stays IN_PROGRESS, run dedupe again to resume\n", yellow("!"), stats.RunID)
		}
		return err
	},
}

func init() {
	dedupeCmd.Flags().Int64Var(&dedupeGenerationID, "generation_id", 0, "Generation to deduplicate (default: latest)")
	rootCmd.AddCommand(dedupeCmd)
}

func printStats(s *core.Stats) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== Deduplication run %d (generation %d) ===", s.RunID, s.GenerationID)))

	state := color.New(color.FgYellow).Sprint("IN_PROGRESS")
	if s.Finished {
		state = color.New(color.FgGreen).Sprint("FINISHED")
	}
	fmt.Printf("  State:     %s\n", state)
	fmt.Printf("  Embedded:  %d cards\n", s.Embedded)
	fmt.Printf("  Contexts:  %d canonical\n", s.Contexts)
	fmt.Printf("  Cards:     %d seeded, %d linked, %d merged, %d skipped\n",
		s.Cards.Seeded, s.Cards.Linked, s.Cards.Merged, s.Cards.Skipped)
	fmt.Printf("  Edges:     %d linked, %d skipped\n", s.Edges.Linked, s.Edges.Skipped)
	if s.Unlinked > 0 {
		fmt.Printf("  Unlinked:  %s\n", color.New(color.FgRed).Sprintf("%d cards", s.Unlinked))
	}
	fmt.Printf("  Tokens:    %d prompt, %d completion\n", s.Usage.PromptTokens, s.Usage.CompletionTokens)
	fmt.Printf("  Cost:      $%.4f\n", s.Cost)
	fmt.Println()
}
