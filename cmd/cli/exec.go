package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/stlc/internal/chain"
)

func execCmd() *cobra.Command {
	var (
		interpreter string
		timeout     time.Duration
		review      bool
		docPairs    []string
	)

	cmd := &cobra.Command{
		Use:   "exec <script>",
		Short: "Run a test script and optionally review its execution",
		Long: `Runs a test script and prints its exit code and output. With --review the
script and its output are fed to the test-execution chain together with any
--doc documents (test_environment, test_tools, test_data).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script := args[0]
			result, err := chain.RunScript(cmd.Context(), interpreter, script, timeout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Document())
			fmt.Fprintf(out, "\nDuration: %s\n", result.Duration.Round(time.Millisecond))

			if !review {
				if !result.Passed() {
					return fmt.Errorf("script failed with exit code %d", result.ExitCode)
				}
				return nil
			}

			docs, err := parseDocs(docPairs)
			if err != nil {
				return err
			}
			code, err := os.ReadFile(script)
			if err != nil {
				return err
			}
			docs[chain.DocTestCode] = string(code)
			docs[chain.DocExecutionOutput] = result.Document()

			phase, err := chain.LookupPhase(chain.PhaseTestExecution)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return runChain(cmd.Context(), out, phase, docs, false, "", "")
		},
	}

	cmd.Flags().StringVarP(&interpreter, "interpreter", "i", chain.DefaultInterpreter, "Interpreter to run the script with")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", chain.DefaultScriptTimeout, "Time limit for the script")
	cmd.Flags().BoolVar(&review, "review", false, "Review the execution with the test-execution chain")
	cmd.Flags().StringArrayVarP(&docPairs, "doc", "d", nil, "Extra document as key=path (repeatable)")

	return cmd
}
