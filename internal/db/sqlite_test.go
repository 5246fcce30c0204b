package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	database.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return database
}

func newUser(t *testing.T, database *Database, email string) *User {
	t.Helper()
	u, err := database.CreateUser(context.Background(), email, "hash")
	require.NoError(t, err)
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	u := newUser(t, database, "ana@docente.uss.cl")
	assert.NotZero(t, u.ID)

	_, err := database.CreateUser(ctx, "ana@docente.uss.cl", "other")
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := database.GetUserByEmail(ctx, "ana@docente.uss.cl")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = database.GetUserByEmail(ctx, "nadie@docente.uss.cl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationsAreScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ana := newUser(t, database, "ana@docente.uss.cl")
	luis := newUser(t, database, "luis@docente.uss.cl")

	first, err := database.CreateConversation(ctx, ana.ID, "Primera", nil)
	require.NoError(t, err)
	second, err := database.CreateConversation(ctx, ana.ID, "Segunda", nil)
	require.NoError(t, err)
	_, err = database.CreateConversation(ctx, luis.ID, "Ajena", nil)
	require.NoError(t, err)

	list, err := database.ListConversations(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	_, err = database.TouchConversation(ctx, first.ID)
	require.NoError(t, err)
	list, err = database.ListConversations(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)

	_, err = database.GetConversation(ctx, luis.ID, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	renamed, err := database.RenameConversation(ctx, ana.ID, second.ID, "Tesis")
	require.NoError(t, err)
	assert.Equal(t, "Tesis", renamed.Title)
	_, err = database.RenameConversation(ctx, luis.ID, second.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ana := newUser(t, database, "ana@docente.uss.cl")

	conv, err := database.CreateConversation(ctx, ana.ID, "c", nil)
	require.NoError(t, err)
	_, err = database.SaveMessage(ctx, conv.ID, "user", "hola", nil)
	require.NoError(t, err)
	report, err := database.CreateReport(ctx, ana.ID, &conv.ID, "error", "")
	require.NoError(t, err)
	assert.Equal(t, "pendiente", report.Status)

	require.NoError(t, database.DeleteConversation(ctx, ana.ID, conv.ID))
	msgs, err := database.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, database.DeleteConversation(ctx, ana.ID, conv.ID), ErrNotFound)
}

func TestMessagesAndHistory(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ana := newUser(t, database, "ana@docente.uss.cl")
	conv, err := database.CreateConversation(ctx, ana.ID, "c", nil)
	require.NoError(t, err)

	for _, text := range []string{"uno", "dos", "tres", "cuatro"} {
		_, err := database.SaveMessage(ctx, conv.ID, "user", text, nil)
		require.NoError(t, err)
	}
	_, err = database.SaveMessage(ctx, conv.ID, "ai", "cinco", []string{"guia.pdf"})
	require.NoError(t, err)

	msgs, err := database.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "uno", msgs[0].Text)
	assert.Equal(t, []string{}, msgs[0].Sources)
	assert.Equal(t, []string{"guia.pdf"}, msgs[4].Sources)

	history, err := database.GetConversationHistory(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "cuatro", history[0].Text)
	assert.Equal(t, "cinco", history[1].Text)
}

func TestSearchDocuments(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	ana := newUser(t, database, "ana@docente.uss.cl")
	bot, err := database.CreateChatbot(ctx, ana.ID, "Reglamento", "")
	require.NoError(t, err)
	other, err := database.CreateChatbot(ctx, ana.ID, "Otro", "")
	require.NoError(t, err)

	_, err = database.SaveDocument(ctx, bot.ID, "calendario.txt", "El semestre comienza en marzo")
	require.NoError(t, err)
	_, err = database.SaveDocument(ctx, bot.ID, "biblioteca.txt", "La biblioteca abre a las ocho")
	require.NoError(t, err)
	_, err = database.SaveDocument(ctx, other.ID, "otro.txt", "biblioteca central")
	require.NoError(t, err)

	matches, err := database.SearchDocuments(ctx, bot.ID, "¿Cuándo abre la biblioteca?", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "biblioteca.txt", matches[0].Name)

	matches, err = database.SearchDocuments(ctx, bot.ID, `" OR * NEAR(`, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	got, err := database.GetChatbot(ctx, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DocumentsCount)
	assert.True(t, got.Active)

	bots, err := database.ListChatbots(ctx)
	require.NoError(t, err)
	assert.Len(t, bots, 2)
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"hola" OR "mundo"`, matchExpression("Hola, mundo! hola"))
	assert.Equal(t, "", matchExpression(`"*" - a`))
	assert.Equal(t, `"año" OR "2025"`, matchExpression("año 2025"))
}
