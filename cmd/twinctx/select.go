package main

import (
	"strings"

	"github.com/spf13/cobra"

	twctx "github.com/easyops/twinmcp/pkg/context"
)

var selectCmd = &cobra.Command{
	Use:   "select <query>",
	Short: "Select scored context items for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		items, err := a.selector().SelectContext(ctx, strings.Join(args, " "), selectOptions(cmd)...)
		if err != nil {
			return err
		}
		if items == nil {
			items = []*twctx.Item{}
		}
		return writeJSON(cmd.OutOrStdout(), items)
	},
}

func init() {
	rootCmd.AddCommand(selectCmd)
	addSelectFlags(selectCmd)
}

func addSelectFlags(cmd *cobra.Command) {
	cmd.Flags().String("conversation", "", "Conversation ID whose history is considered")
	cmd.Flags().Int("budget", 0, "Token budget (defaults to selector.token_budget)")
}

func selectOptions(cmd *cobra.Command) []twctx.SelectOption {
	var opts []twctx.SelectOption
	if id, _ := cmd.Flags().GetString("conversation"); id != "" {
		opts = append(opts, twctx.WithConversationID(id))
	}
	if budget, _ := cmd.Flags().GetInt("budget"); budget > 0 {
		opts = append(opts, twctx.WithTokenBudget(budget))
	}
	return opts
}
