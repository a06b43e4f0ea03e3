package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/QTest-hq/stlc/internal/chain"
	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/extract"
)

func chainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Review lifecycle documents through a prompt chain",
	}

	cmd.AddCommand(chainPhasesCmd())
	cmd.AddCommand(chainRunCmd())
	cmd.AddCommand(chainSuggestCmd())

	return cmd
}

func chainPhasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "List phases and the documents they need",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range chain.PhaseNames() {
				p, _ := chain.LookupPhase(name)
				fmt.Fprintf(out, "%s (%s)\n", p.Name, p.Title)
				for _, d := range p.Documents {
					req := "optional"
					if d.Required {
						req = "required"
					}
					fmt.Fprintf(out, "  --doc %s=<file>  %s, %s\n", d.Key, d.Label, req)
				}
				fmt.Fprintf(out, "  models: %s\n\n", strings.Join(p.Models(), ", "))
			}
			return nil
		},
	}
}

func chainRunCmd() *cobra.Command {
	var (
		docPairs   []string
		suggest    bool
		finalModel string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "run <phase>",
		Short: "Run a phase's prompt chain",
		Long: `Runs the chain configured for the phase in .stlc.yaml, level by level.
Each level's combined output becomes the feedback of the next; a final model
evaluates the last level. Outputs are written per level and for the session,
as JSON and text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := chain.LookupPhase(args[0])
			if err != nil {
				return err
			}
			docs, err := parseDocs(docPairs)
			if err != nil {
				return err
			}
			return runChain(cmd.Context(), cmd.OutOrStdout(), phase, docs, suggest, finalModel, outDir)
		},
	}

	cmd.Flags().StringArrayVarP(&docPairs, "doc", "d", nil, "Document as key=path (repeatable)")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "Ask the LLM for the chain structure instead of using .stlc.yaml")
	cmd.Flags().StringVar(&finalModel, "final-model", "", "Model of the final evaluation")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default from config)")

	return cmd
}

func newRunner(finalModel string, opts ...chain.RunnerOption) (*chain.Runner, error) {
	completer, _, err := cliEnv.completer()
	if err != nil {
		return nil, err
	}
	if finalModel == "" {
		finalModel = cliEnv.cfg.LLM.FinalModel
	}
	opts = append([]chain.RunnerOption{chain.WithFinalModel(finalModel)}, opts...)
	return chain.NewRunner(completer, opts...), nil
}

func runChain(ctx context.Context, out io.Writer, phase *chain.Phase, docs map[string]string, suggest bool, finalModel, outDir string) error {
	if outDir == "" {
		outDir = cliEnv.outputDir()
	}

	pc, _ := cliEnv.project.Phase(phase.Name)
	if finalModel == "" {
		finalModel = pc.FinalModel
	}

	runner, err := newRunner(finalModel, chain.WithSuggestionSink(extract.NewFileSink(outDir)))
	if err != nil {
		return err
	}

	levels := chain.LevelsFromConfig(pc)
	if suggest {
		levels, _, err = runner.Suggest(ctx, phase, docs)
		if err != nil {
			return err
		}
		log.Info().Int("levels", len(levels)).Msg("using suggested chain")
	}

	session, err := runner.Run(ctx, phase, docs, levels)
	if err != nil {
		return err
	}

	paths, err := chain.WriteAll(outDir, session)
	if err != nil {
		return err
	}

	for _, lvl := range session.Levels {
		fmt.Fprintf(out, "Level %d\n  %s: %s\n  %s: %s\n\n", lvl.Level, lvl.LeftModel, lvl.LeftOutput, lvl.RightModel, lvl.RightOutput)
	}
	if session.Final != nil {
		fmt.Fprintf(out, "Final evaluation (%s):\n%s\n\n", session.Final.FinalModel, session.Final.FinalOutput)
	}
	for _, p := range paths {
		fmt.Fprintf(out, "Saved %s\n", p)
	}
	return nil
}

func chainSuggestCmd() *cobra.Command {
	var (
		docPairs []string
		save     bool
		model    string
	)

	cmd := &cobra.Command{
		Use:   "suggest <phase>",
		Short: "Ask the LLM for a chain structure",
		Long: `Prints a suggested chain as .stlc.yaml levels. With --save the levels are
stored in the project file for the phase.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := chain.LookupPhase(args[0])
			if err != nil {
				return err
			}
			docs, err := parseDocs(docPairs)
			if err != nil {
				return err
			}

			runner, err := newRunner("",
				chain.WithSuggestionModel(model),
				chain.WithSuggestionSink(extract.NewFileSink(cliEnv.outputDir())))
			if err != nil {
				return err
			}

			levels, _, err := runner.Suggest(cmd.Context(), phase, docs)
			if err != nil {
				return err
			}

			pc := levelsToConfig(levels)
			data, err := yaml.Marshal(map[string]config.PhaseConfig{phase.Name: pc})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))

			if save {
				existing, _ := cliEnv.project.Phase(phase.Name)
				pc.FinalModel = existing.FinalModel
				if cliEnv.project.Phases == nil {
					cliEnv.project.Phases = map[string]config.PhaseConfig{}
				}
				cliEnv.project.Phases[phase.Name] = pc
				if err := config.SaveProjectConfig(cliEnv.dir, cliEnv.project); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Saved chain for %s to %s\n", phase.Name, config.ProjectFileNames[0])
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&docPairs, "doc", "d", nil, "Document as key=path (repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the suggestion in .stlc.yaml")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model asked for the suggestion")

	return cmd
}

func levelsToConfig(levels []chain.Level) config.PhaseConfig {
	pc := config.PhaseConfig{Levels: make([]config.LevelConfig, len(levels))}
	for i, l := range levels {
		pc.Levels[i] = config.LevelConfig{
			Left:  config.NodeConfig{Model: l.Left.Model, Prompt: l.Left.Prompt},
			Right: config.NodeConfig{Model: l.Right.Model, Prompt: l.Right.Prompt},
		}
	}
	return pc
}
