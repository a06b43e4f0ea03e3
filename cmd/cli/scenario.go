package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/stlc/internal/extract"
	"github.com/QTest-hq/stlc/internal/scenario"
)

// ScenarioOutputFile is where a generated model output is written
const ScenarioOutputFile = "scenario_output.json"

func scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Generate test scenarios and test cases from a document",
	}

	cmd.AddCommand(scenarioTypesCmd())
	cmd.AddCommand(scenarioGenerateCmd())

	return cmd
}

func scenarioTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List test types, document types and prompt elements",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, tt := range scenario.TestTypes() {
				fmt.Fprintf(out, "%-32s %-15s %s\n", tt.Name, tt.Category, tt.Approach)
			}
			fmt.Fprintf(out, "\nDocument types: %s\n", strings.Join(scenario.DocumentTypes, ", "))
			fmt.Fprintf(out, "Instructions:   %s\n", elementNames(scenario.InstructionElements))
			fmt.Fprintf(out, "Scoring:        %s\n", elementNames(scenario.ScoringElements))
			fmt.Fprintf(out, "Case types:     %s\n", elementNames(scenario.CaseTypes))
			return nil
		},
	}
}

func elementNames(elements []scenario.Element) string {
	names := make([]string, len(elements))
	for i, e := range elements {
		names[i] = e.Name
	}
	return strings.Join(names, ", ")
}

func scenarioGenerateCmd() *cobra.Command {
	var (
		req           scenario.Request
		scenarioModel string
		caseModel     string
		concurrency   int
		outDir        string
		save          bool
	)

	cmd := &cobra.Command{
		Use:   "generate <document>",
		Short: "Generate scenarios for a document, then test cases for each scenario",
		Long: `Asks the scenario model for the test scenarios of a document and then the
case model for the test cases of each scenario. The model output is written to
scenario_output.json and, with --save, stored as a session that
"stlc sessions select" can run smart selection on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			req.Document = string(data)

			completer, _, err := cliEnv.completer()
			if err != nil {
				return err
			}
			gen := scenario.NewGenerator(completer,
				scenario.WithScenarioModel(scenarioModel),
				scenario.WithCaseModel(caseModel),
				scenario.WithConcurrency(concurrency),
			)

			result, err := gen.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = cliEnv.outputDir()
			}
			sink := extract.NewFileSink(outDir)
			if err := sink.Save(ScenarioOutputFile, result.Output); err != nil {
				return err
			}

			cases, skipped, err := result.TestCases()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d scenarios, %d test cases (%d skipped, %d scenarios failed)\n",
				result.Combination.Label(), len(result.Output.TestScenarios), len(cases), skipped, result.Failed())
			fmt.Fprintf(out, "Saved %s\n", sink.Path(ScenarioOutputFile))

			if !save {
				return nil
			}
			session, err := result.Session()
			if err != nil {
				return err
			}
			store, closeDB, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			if err := store.SaveSession(cmd.Context(), session); err != nil {
				return err
			}
			fmt.Fprintf(out, "Stored session %s\n", session.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ProcessTitle, "process", "", "Process title")
	cmd.Flags().StringVar(&req.TestType, "type", "", "Test type (see \"stlc scenario types\")")
	cmd.Flags().StringVar(&req.Category, "category", "", "Test category (default from the test type)")
	cmd.Flags().StringVar(&req.DocumentType, "doc-type", "", "Document type (default Other)")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Replace the test type's scenario prompt")
	cmd.Flags().StringSliceVar(&req.Instructions, "instruction", nil, "Instruction elements (default all)")
	cmd.Flags().StringSliceVar(&req.Scoring, "scoring", nil, "Scoring elements (default all)")
	cmd.Flags().StringSliceVar(&req.CaseTypes, "case-type", nil, "Test case types (default all)")
	cmd.Flags().StringVarP(&scenarioModel, "model", "m", "", "Scenario model (default tier2)")
	cmd.Flags().StringVar(&caseModel, "case-model", "", "Test case model (default the scenario model)")
	cmd.Flags().IntVar(&concurrency, "concurrency", scenario.DefaultConcurrency, "Scenarios processed at once")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the output as a session (needs DATABASE_URL)")
	cmd.MarkFlagRequired("process")
	cmd.MarkFlagRequired("type")

	return cmd
}
