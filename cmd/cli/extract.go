package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/stlc/internal/extract"
)

func extractCmd() *cobra.Command {
	var (
		name        string
		stringAware bool
	)

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Pull the first JSON object out of free text",
		Long: `Reads text from a file, or stdin when no file or "-" is given, and saves
the first balanced JSON object found in it to the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			var opts []extract.Option
			if stringAware {
				opts = append(opts, extract.StringAware())
			}

			msg, ok := extract.ExtractAndSave(string(data), name, extract.NewFileSink(cliEnv.outputDir()), opts...)
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			if !ok {
				return fmt.Errorf("nothing extracted")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "extracted.json", "File name to save the object under")
	cmd.Flags().BoolVar(&stringAware, "string-aware", false, "Ignore braces inside JSON strings")

	return cmd
}
