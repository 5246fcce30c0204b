package cmds

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/RichardoC/chatsync/internal/models"
)

func TestPrinterConversationsTable(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "table")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	convs := []models.Conversation{
		{ID: models.RemoteID(2), Title: "Horarios", UpdatedAt: at},
		{ID: models.RemoteID(1), Title: "Notas", UpdatedAt: at},
	}

	require.NoError(t, p.Conversations(convs, models.RemoteID(2)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TITLE")
	assert.True(t, strings.HasPrefix(lines[1], "*"))
	assert.Contains(t, lines[1], "Horarios")
	assert.False(t, strings.HasPrefix(lines[2], "*"))
}

func TestPrinterMessageLabels(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "table")

	p.Message(models.Message{Sender: models.SenderUser, Text: "Hola", Status: models.StatusPending})
	p.Message(models.Message{Sender: models.SenderAssistant, Text: "Hola, ¿en qué te ayudo?", Status: models.StatusSent, Sources: []string{"a.txt", "b.txt"}})
	p.Message(models.Message{Sender: models.SenderAssistant, Text: "falló", Status: models.StatusFailed})

	assert.Equal(t, "tú (enviando): Hola\n"+
		"asistente: Hola, ¿en qué te ayudo?\n"+
		"  fuentes: a.txt, b.txt\n"+
		"asistente (error): falló\n", buf.String())
}

func TestPrinterMessagesYAML(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "yaml")
	msgs := []models.Message{
		{ID: models.RemoteID(7), Sender: models.SenderAssistant, Text: "Hola", Status: models.StatusSent, Sources: []string{"a.txt"}},
	}

	require.NoError(t, p.Messages(msgs))

	var views []messageView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "7", views[0].ID)
	assert.Equal(t, "assistant", views[0].Sender)
	assert.Equal(t, []string{"a.txt"}, views[0].Sources)
}

func TestPromptTrimsAndAcceptsMissingNewline(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("  ana@docente.uss.cl \nsecreto"))

	email, err := prompt(in, &out, "Email: ")
	require.NoError(t, err)
	assert.Equal(t, "ana@docente.uss.cl", email)

	password, err := prompt(in, &out, "Contraseña: ")
	require.NoError(t, err)
	assert.Equal(t, "secreto", password)
	assert.Equal(t, "Email: Contraseña: ", out.String())

	_, err = prompt(in, &out, "otra: ")
	assert.Error(t, err)
}
