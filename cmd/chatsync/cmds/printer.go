package cmds

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RichardoC/chatsync/internal/models"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

func (p *printer) yaml() bool {
	return p.format == "yaml"
}

func (p *printer) encode(v interface{}) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (p *printer) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

type conversationView struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
	ChatbotID *int64    `yaml:"chatbot_id,omitempty"`
}

type messageView struct {
	ID        string    `yaml:"id"`
	Sender    string    `yaml:"sender"`
	Text      string    `yaml:"text"`
	Status    string    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
	Sources   []string  `yaml:"sources,omitempty"`
}

func (p *printer) Conversations(convs []models.Conversation, active models.ID) error {
	if p.yaml() {
		views := make([]conversationView, 0, len(convs))
		for _, c := range convs {
			views = append(views, conversationView{
				ID: c.ID.String(), Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, ChatbotID: c.ChatbotID,
			})
		}
		return p.encode(views)
	}

	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		marker := ""
		if c.ID == active {
			marker = "*"
		}
		rows = append(rows, []string{marker, c.ID.String(), c.Title, c.UpdatedAt.Local().Format("2006-01-02 15:04")})
	}
	return p.table([]string{"", "ID", "TITLE", "UPDATED"}, rows)
}

func (p *printer) Conversation(c models.Conversation) error {
	return p.Conversations([]models.Conversation{c}, models.ID{})
}

func (p *printer) Messages(msgs []models.Message) error {
	if p.yaml() {
		views := make([]messageView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, messageView{
				ID: m.ID.String(), Sender: string(m.Sender), Text: m.Text, Status: string(m.Status),
				CreatedAt: m.CreatedAt, Sources: m.Sources,
			})
		}
		return p.encode(views)
	}
	for _, m := range msgs {
		p.Message(m)
	}
	return nil
}

func (p *printer) Message(m models.Message) {
	if p.yaml() {
		_ = p.encode(messageView{
			ID: m.ID.String(), Sender: string(m.Sender), Text: m.Text, Status: string(m.Status),
			CreatedAt: m.CreatedAt, Sources: m.Sources,
		})
		return
	}

	who := "tú"
	if m.Sender == models.SenderAssistant {
		who = "asistente"
	}
	suffix := ""
	switch m.Status {
	case models.StatusPending:
		suffix = " (enviando)"
	case models.StatusFailed:
		suffix = " (error)"
	}
	fmt.Fprintf(p.w, "%s%s: %s\n", who, suffix, m.Text)
	if len(m.Sources) > 0 {
		fmt.Fprintf(p.w, "  fuentes: %s\n", strings.Join(m.Sources, ", "))
	}
}

func (p *printer) Chatbots(bots []models.Chatbot) error {
	if p.yaml() {
		return p.encode(bots)
	}
	rows := make([][]string, 0, len(bots))
	for _, b := range bots {
		rows = append(rows, []string{fmt.Sprint(b.ID), b.Title, fmt.Sprint(b.DocumentsCount), b.Description})
	}
	return p.table([]string{"ID", "TITLE", "DOCS", "DESCRIPTION"}, rows)
}

func (p *printer) Value(v interface{}, line string) error {
	if p.yaml() {
		return p.encode(v)
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}
