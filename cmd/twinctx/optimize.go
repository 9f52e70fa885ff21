package main

import (
	"strings"

	"github.com/spf13/cobra"

	twctx "github.com/easyops/twinmcp/pkg/context"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <query>",
	Short: "Build an optimized, quality-gated context for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		var builderOpts []twctx.BuilderOption
		builderOpts = append(builderOpts, twctx.WithBuilderLogger(a.logger))
		if fallback, _ := cmd.Flags().GetBool("fallback"); fallback {
			builderOpts = append(builderOpts, twctx.WithFallback(a.cfg.Optimizer.FallbackQuality))
		}
		builder := twctx.NewBuilder(a.selector(), a.optimizer(), builderOpts...)

		input := &twctx.BuildInput{Query: strings.Join(args, " ")}
		input.ConversationID, _ = cmd.Flags().GetString("conversation")
		input.TokenBudget, _ = cmd.Flags().GetInt("budget")
		if cmd.Flags().Changed("min-quality") {
			q, _ := cmd.Flags().GetFloat64("min-quality")
			input.Constraints = input.Constraints.WithMinQuality(q)
		}
		if cmd.Flags().Changed("max-tokens") {
			n, _ := cmd.Flags().GetInt("max-tokens")
			input.Constraints = input.Constraints.WithMaxTokens(n)
		}

		out, err := builder.Build(ctx, input)
		if err != nil {
			return err
		}
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			_, err = cmd.OutOrStdout().Write([]byte(out.Content + "\n"))
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	addSelectFlags(optimizeCmd)

	optimizeCmd.Flags().Float64("min-quality", 0, "Quality gate (defaults to optimizer.min_quality)")
	optimizeCmd.Flags().Int("max-tokens", 0, "Token cap for the optimized context (defaults to --budget)")
	optimizeCmd.Flags().Bool("fallback", false, "Relax the quality gate and fall back to the unoptimized context")
	optimizeCmd.Flags().Bool("raw", false, "Print only the rendered context")
}
