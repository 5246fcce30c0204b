package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RichardoC/chatsync/internal/gateway"
	"github.com/RichardoC/chatsync/internal/models"
)

func newConversationsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List and manage conversations",
	}
	cmd.AddCommand(
		newListConversationsCommand(app),
		newCreateConversationCommand(app),
		newRenameConversationCommand(app),
		newDeleteConversationCommand(app),
	)
	return cmd
}

func newListConversationsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			if err := app.Updater.Refresh(cmd.Context()); err != nil {
				return err
			}
			return app.printer(cmd).Conversations(app.Updater.Store().List(), app.Updater.Active())
		},
	}
}

func newCreateConversationCommand(app *App) *cobra.Command {
	var (
		title     string
		chatbotID int64
		noWelcome bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			opts := gateway.CreateOptions{Title: title, WithWelcome: !noWelcome}
			if chatbotID > 0 {
				opts.ChatbotID = &chatbotID
			}
			conv, err := app.Updater.NewConversation(cmd.Context(), opts)
			if err != nil {
				return err
			}
			p := app.printer(cmd)
			if err := p.Conversation(conv); err != nil {
				return err
			}
			if p.yaml() {
				return nil
			}
			return p.Messages(app.Updater.Store().Messages(conv.ID))
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "conversation title")
	cmd.Flags().Int64Var(&chatbotID, "chatbot", 0, "chatbot to answer with")
	cmd.Flags().BoolVar(&noWelcome, "no-welcome", false, "skip the assistant's welcome message")
	return cmd
}

func newRenameConversationCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := models.ParseID(args[0])
			if err != nil {
				return err
			}
			conv, err := app.Updater.RenameConversation(cmd.Context(), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return app.printer(cmd).Conversation(conv)
		},
	}
}

func newDeleteConversationCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := models.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Updater.DeleteConversation(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversación %s eliminada\n", id)
			return nil
		},
	}
}

func newMessagesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Show the transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := models.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Updater.Refresh(cmd.Context()); err != nil {
				return err
			}
			msgs, err := app.Updater.OpenConversation(cmd.Context(), id)
			if err != nil {
				return err
			}
			return app.printer(cmd).Messages(msgs)
		},
	}
}

func newSendCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <text>",
		Short: "Send a message and print the assistant's reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			id, err := models.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Updater.Refresh(cmd.Context()); err != nil {
				return err
			}
			reply, err := app.Updater.SendMessage(cmd.Context(), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			app.printer(cmd).Message(reply)
			return nil
		},
	}
}
