package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RichardoC/chatsync/internal/gateway"
	"github.com/RichardoC/chatsync/internal/models"
	"github.com/RichardoC/chatsync/internal/notify"
)

const chatHelp = `Comandos:
  /list            listar conversaciones
  /open <id>       abrir una conversación
  /new [título]    nueva conversación
  /rename <título> renombrar la conversación actual
  /delete          eliminar la conversación actual
  /quit            salir`

func newChatCommand(app *App) *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			notes, err := notify.Subscribe(ctx, app.PubSub, app.Logger)
			if err != nil {
				return err
			}
			errOut := app.errOut(cmd)
			go func() {
				for n := range notes {
					fmt.Fprintf(errOut, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
				}
			}()

			s := &chatSession{app: app, p: app.printer(cmd), out: cmd.OutOrStdout(), errOut: errOut}
			if err := s.start(ctx, conversation); err != nil {
				return err
			}
			return s.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation to open (default: most recent)")
	return cmd
}

type chatSession struct {
	app    *App
	p      *printer
	out    io.Writer
	errOut io.Writer
}

func (s *chatSession) start(ctx context.Context, conversation string) error {
	u := s.app.Updater
	if err := u.Refresh(ctx); err != nil {
		return err
	}
	if conversation != "" {
		id, err := models.ParseID(conversation)
		if err != nil {
			return err
		}
		return s.open(ctx, id)
	}
	if active := u.Active(); !active.IsZero() {
		return s.open(ctx, active)
	}
	return s.create(ctx, "")
}

func (s *chatSession) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.errOut, "Escribe /help para ver los comandos.")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, line)
			if err != nil {
				fmt.Fprintln(s.errOut, "Error:", err)
			}
			if quit {
				return nil
			}
			continue
		}
		s.send(ctx, line)
	}
	return scanner.Err()
}

func (s *chatSession) send(ctx context.Context, text string) {
	active := s.app.Updater.Active()
	if active.IsZero() {
		fmt.Fprintln(s.errOut, "No hay conversación activa, usa /new")
		return
	}
	fmt.Fprintln(s.errOut, "asistente está escribiendo...")
	reply, err := s.app.Updater.SendMessage(ctx, active, text)
	if err != nil && reply.Text == "" {
		fmt.Fprintln(s.errOut, "Error:", err)
		return
	}
	if reply.ID.IsZero() {
		return
	}
	s.p.Message(reply)
}

func (s *chatSession) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	u := s.app.Updater

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.errOut, chatHelp)
	case "/list":
		return false, s.p.Conversations(u.Store().List(), u.Active())
	case "/open":
		id, err := models.ParseID(arg)
		if err != nil {
			return false, err
		}
		return false, s.open(ctx, id)
	case "/new":
		return false, s.create(ctx, arg)
	case "/rename":
		conv, err := u.RenameConversation(ctx, u.Active(), arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Conversación renombrada a %q\n", conv.Title)
	case "/delete":
		id := u.Active()
		if id.IsZero() {
			return false, nil
		}
		if err := u.DeleteConversation(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Conversación %s eliminada\n", id)
		if next := u.Active(); !next.IsZero() {
			return false, s.open(ctx, next)
		}
	default:
		return false, fmt.Errorf("comando desconocido %s", name)
	}
	return false, nil
}

func (s *chatSession) open(ctx context.Context, id models.ID) error {
	msgs, err := s.app.Updater.OpenConversation(ctx, id)
	if err != nil {
		return err
	}
	conv, _ := s.app.Updater.Store().Get(id)
	fmt.Fprintf(s.out, "== %s (%s) ==\n", conv.Title, id)
	return s.p.Messages(msgs)
}

func (s *chatSession) create(ctx context.Context, title string) error {
	conv, err := s.app.Updater.NewConversation(ctx, gateway.CreateOptions{Title: title, WithWelcome: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "== %s (%s) ==\n", conv.Title, conv.ID)
	return s.p.Messages(s.app.Updater.Store().Messages(conv.ID))
}
