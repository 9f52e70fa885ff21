package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easyops/twinmcp/pkg/core/message"
	"github.com/easyops/twinmcp/pkg/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add documents or conversation messages to the store",
}

var ingestDocCmd = &cobra.Command{
	Use:   "doc <file...>",
	Short: "Store files as searchable documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		source, _ := cmd.Flags().GetString("source")
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			id, err := a.store.PutDocument(ctx, store.Document{
				ID:      path,
				Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Content: string(data),
				Source:  source,
			})
			if err != nil {
				return fmt.Errorf("store %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var ingestMessageCmd = &cobra.Command{
	Use:   "message <content>",
	Short: "Append a message to a conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		conversation, _ := cmd.Flags().GetString("conversation")
		role, _ := cmd.Flags().GetString("role")

		msg := message.NewMessage(message.Role(role), strings.Join(args, " "))
		msg.ConversationID = conversation
		return a.store.AppendMessage(ctx, msg)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestDocCmd)
	ingestCmd.AddCommand(ingestMessageCmd)

	ingestDocCmd.Flags().String("source", "cli", "Source label stored with the document")

	ingestMessageCmd.Flags().String("conversation", "", "Conversation ID")
	ingestMessageCmd.Flags().String("role", string(message.RoleUser), "Message role: user, assistant or system")
	_ = ingestMessageCmd.MarkFlagRequired("conversation")
}
