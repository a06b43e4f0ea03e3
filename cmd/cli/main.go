package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		projectDir string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "stlc",
		Short:   "stlc - LLM-assisted software test lifecycle",
		Long:    `stlc generates test scenarios and cases from documents, reviews code and test artifacts through prompt chains and removes duplicate test cases with an LLM judge.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return loadEnv(projectDir)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", ".", "Directory holding .stlc.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(chainCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(scenarioCmd())

	return rootCmd
}
