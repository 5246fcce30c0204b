package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RichardoC/chatsync/internal/gateway"
	"github.com/RichardoC/chatsync/internal/models"
)

func newChatbotsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatbots",
		Short: "List chatbots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			bots, err := app.Gateway.ListChatbots(cmd.Context())
			if err != nil {
				return err
			}
			return app.printer(cmd).Chatbots(bots)
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a chatbot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			bot, err := app.Gateway.CreateChatbot(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			return app.printer(cmd).Chatbots([]models.Chatbot{bot})
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "chatbot description")
	cmd.AddCommand(create)
	return cmd
}

func newUploadCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <chatbot-id> <file>",
		Short: "Upload a text document to a chatbot's knowledge base",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			chatbotID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || chatbotID <= 0 {
				return fmt.Errorf("invalid chatbot id %q", args[0])
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := app.Gateway.UploadDocument(cmd.Context(), chatbotID, filepath.Base(args[1]), f)
			if err != nil {
				return err
			}
			return app.printer(cmd).Value(doc, fmt.Sprintf("Documento %d (%s) subido", doc.ID, doc.Name))
		},
	}
}

func newReportCommand(app *App) *cobra.Command {
	var (
		conversation string
		reportType   string
		comment      string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report a problem with the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			in := gateway.ReportInput{Type: reportType, Comment: comment}
			if conversation != "" {
				id, err := models.ParseID(conversation)
				if err != nil {
					return err
				}
				in.ConversationID = &id
			}
			report, err := app.Gateway.SubmitReport(cmd.Context(), in)
			if err != nil {
				return err
			}
			return app.printer(cmd).Value(report, fmt.Sprintf("Reporte %d enviado (%s)", report.ID, report.Status))
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation the report is about")
	cmd.Flags().StringVarP(&reportType, "type", "t", "", "report type")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "free-form comment")
	cobra.CheckErr(cmd.MarkFlagRequired("type"))
	return cmd
}
