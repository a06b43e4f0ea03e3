package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/stlc/internal/db"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Work with stored scenario generation sessions",
	}

	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsImportCmd())
	cmd.AddCommand(sessionsSelectCmd())

	return cmd
}

func openStore(ctx context.Context) (*db.Store, func(), error) {
	url := cliEnv.cfg.DatabaseURL
	if url == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is not set")
	}

	log.Debug().Str("database", maskConnectionString(url)).Msg("connecting")
	database, err := db.New(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	return db.NewStore(database), database.Close, nil
}

func combinationFlags(cmd *cobra.Command, c *db.Combination) {
	cmd.Flags().StringVar(&c.ProcessTitle, "process", "", "Process title")
	cmd.Flags().StringVar(&c.Category, "category", "", "Selected category")
	cmd.Flags().StringVar(&c.TestType, "type", "", "Selected test type")
	cmd.MarkFlagRequired("process")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("type")
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List process, test type and category combinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			combos, err := store.ListCombinations(cmd.Context())
			if err != nil {
				return err
			}
			if len(combos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}
			for _, c := range combos {
				fmt.Fprintln(cmd.OutOrStdout(), c.Label())
			}
			return nil
		},
	}
}

func sessionsImportCmd() *cobra.Command {
	var combo db.Combination

	cmd := &cobra.Command{
		Use:   "import <model-output.json>",
		Short: "Store a scenario generation output as a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}

			cases, skipped, err := db.FlattenTestCases(data)
			if err != nil {
				return err
			}

			store, closeDB, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			session := &db.Session{
				ProcessTitle: combo.ProcessTitle,
				Category:     combo.Category,
				TestType:     combo.TestType,
				ModelOutput:  data,
			}
			if err := store.SaveSession(cmd.Context(), session); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved session %s with %d test cases (%d skipped)\n", session.ID, len(cases), skipped)
			return nil
		},
	}

	combinationFlags(cmd, &combo)
	return cmd
}

func sessionsSelectCmd() *cobra.Command {
	var (
		combo     db.Combination
		modelName string
		outPath   string
		offline   bool
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Run smart selection on the test cases of a stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			cases, err := store.GetSessionTestCases(cmd.Context(), combo)
			if err != nil {
				return err
			}
			if cases == nil {
				return fmt.Errorf("no session for %s", combo.Label())
			}
			if len(cases) == 0 {
				return fmt.Errorf("session %s has no valid test cases", combo.Label())
			}

			oracle, err := buildOracle(cliEnv.selectionModel(modelName), offline)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = filepath.Join(cliEnv.outputDir(), cliEnv.project.Selection.Report)
			}
			return runSelection(cmd.Context(), oracle, cases, outPath)
		},
	}

	combinationFlags(cmd, &combo)
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Similarity model (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Report path")
	cmd.Flags().BoolVar(&offline, "offline", false, "Compare titles instead of asking an LLM")

	return cmd
}
