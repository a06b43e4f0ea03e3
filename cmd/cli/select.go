package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/stlc/internal/selection"
	"github.com/QTest-hq/stlc/pkg/model"
)

func selectCmd() *cobra.Command {
	var (
		modelName string
		outPath   string
		offline   bool
	)

	cmd := &cobra.Command{
		Use:   "select <test-cases.json>",
		Short: "Remove semantically duplicated test cases",
		Long: `Reads a JSON list of test cases and keeps only the unique ones.
Each candidate is compared with the cases kept so far by an LLM judge;
the first match marks it as a duplicate. The report lists the unique cases,
the duplicates with the case they matched, and every comparison made.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			decoded, err := model.DecodeTestCases(f)
			if err != nil {
				return err
			}
			for _, s := range decoded.Skipped {
				log.Warn().Int("index", s.Index).Str("reason", s.Reason).Msg("skipping invalid test case")
			}

			oracle, err := buildOracle(cliEnv.selectionModel(modelName), offline)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = filepath.Join(cliEnv.outputDir(), cliEnv.project.Selection.Report)
			}
			return runSelection(cmd.Context(), oracle, decoded.Cases, outPath)
		},
	}

	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Similarity model (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Report path (default <output_dir>/<selection.report>)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Compare titles instead of asking an LLM")

	return cmd
}

// buildOracle returns the LLM oracle, or the title oracle when offline is
// requested or configured as the fallback for an unreachable LLM
func buildOracle(modelName string, offline bool) (selection.Oracle, error) {
	if offline {
		return selection.TitleOracle(), nil
	}

	completer, _, err := cliEnv.completer()
	if err != nil {
		if cliEnv.cfg.Selection.OfflineOracle == "title" {
			log.Warn().Err(err).Msg("LLM unavailable, comparing titles")
			return selection.TitleOracle(), nil
		}
		return nil, err
	}
	return selection.NewLLMOracle(completer, modelName), nil
}

func runSelection(ctx context.Context, oracle selection.Oracle, cases []model.TestCase, outPath string) error {
	log.Info().Int("cases", len(cases)).Msg("starting smart selection")

	result, err := selection.NewSelector(oracle).Select(ctx, cases)
	if err != nil {
		return fmt.Errorf("selection interrupted after %d comparisons: %w", result.Comparisons(), err)
	}

	if err := selection.WriteReport(outPath, result); err != nil {
		return err
	}

	printSummary(result)
	fmt.Printf("Report saved to %s\n", outPath)
	return nil
}

func printSummary(result *selection.Result) {
	sum := result.Summary()
	fmt.Printf("\nUnique test cases: %d\n", sum.Unique)
	for _, tc := range result.Unique {
		fmt.Printf("  %s  %s\n", tc.Key(), tc.Title)
	}

	fmt.Printf("\nDuplicates: %d\n", sum.Duplicates)
	for _, d := range result.Duplicates {
		fmt.Printf("  %s  %s  (matches %s)\n", d.DuplicateCase.Key(), d.DuplicateCase.Title, d.MatchedWith.Key())
	}

	fmt.Printf("\nComparisons: %d\n", sum.Comparisons)
	if sum.Warnings > 0 {
		fmt.Printf("Comparisons without a verdict: %d\n", sum.Warnings)
	}
}
