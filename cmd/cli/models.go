package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/stlc/internal/llm"
)

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the Ollama server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cliEnv.cfg
			client := llm.NewOllamaClient(cfg.LLM.OllamaURL, map[llm.Tier]string{
				llm.Tier1: cfg.LLM.OllamaTier1,
				llm.Tier2: cfg.LLM.OllamaTier2,
			}, 30*time.Second)

			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list models from %s: %w", client.BaseURL(), err)
			}

			out := cmd.OutOrStdout()
			for _, m := range models {
				fmt.Fprintln(out, m)
			}
			fmt.Fprintf(out, "\nsimilarity: %s  final: %s  tier1: %s  tier2: %s\n",
				cliEnv.selectionModel(""), cfg.LLM.FinalModel, cfg.LLM.OllamaTier1, cfg.LLM.OllamaTier2)
			return nil
		},
	}
}
