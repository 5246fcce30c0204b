package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/auth"
	"github.com/RichardoC/chatsync/internal/db"
	"github.com/RichardoC/chatsync/internal/gateway"
	"github.com/RichardoC/chatsync/internal/llm"
	"github.com/RichardoC/chatsync/internal/models"
	"github.com/RichardoC/chatsync/internal/session"
	"github.com/RichardoC/chatsync/internal/store"
	"github.com/RichardoC/chatsync/internal/updater"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type client struct {
	session *session.Session
	gateway *gateway.Client
	auth    *auth.Service
	updater *updater.Updater
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := NewHandler(database, llm.New(nil, database), zap.NewNop(), "test-secret", time.Hour)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *client {
	sess := session.New()
	gw := gateway.New(srv.URL, sess)
	return &client{
		session: sess,
		gateway: gw,
		auth:    auth.New(gw, sess),
		updater: updater.New(store.New(), gw, nil),
	}
}

func signIn(t *testing.T, c *client, email string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.auth.Register(ctx, email, "secreto"))
	require.NoError(t, c.auth.Login(ctx, email, "secreto"))
	require.True(t, c.session.Authenticated())
	assert.Equal(t, email, c.session.Subject())
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t))
	signIn(t, c, "ana@docente.uss.cl")
	st := c.updater.Store()

	conv, err := c.updater.NewConversation(ctx, gateway.CreateOptions{Title: "X", WithWelcome: true})
	require.NoError(t, err)
	assert.Equal(t, "X", conv.Title)

	require.NoError(t, c.updater.Refresh(ctx))
	list := st.List()
	require.Len(t, list, 1)
	assert.Equal(t, "X", list[0].Title)

	msgs := st.Messages(conv.ID)
	require.NotEmpty(t, msgs)
	assert.Equal(t, models.SenderAssistant, msgs[0].Sender)
	assert.Equal(t, WelcomeText, msgs[0].Text)

	before, _ := st.Get(conv.ID)
	reply, err := c.updater.SendMessage(ctx, conv.ID, "Hola")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
	assert.False(t, reply.ID.IsLocal())

	msgs = st.Messages(conv.ID)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hola", msgs[1].Text)
	assert.Equal(t, models.StatusSent, msgs[1].Status)
	assert.False(t, msgs[1].ID.IsLocal())
	assert.False(t, st.Stale(conv.ID))
	after, _ := st.Get(conv.ID)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))

	// the server transcript matches the optimistic one
	remote, err := c.gateway.FetchMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, remote, 3)
	assert.Equal(t, msgs[1].ID, remote[1].ID)
	assert.Equal(t, msgs[2].ID, remote[2].ID)

	renamed, err := c.updater.RenameConversation(ctx, conv.ID, "Tesis")
	require.NoError(t, err)
	assert.Equal(t, "Tesis", renamed.Title)

	require.NoError(t, c.updater.DeleteConversation(ctx, conv.ID))
	assert.Equal(t, 0, st.Len())
	// deleting again hits 404 on the server and still succeeds
	require.NoError(t, c.updater.DeleteConversation(ctx, conv.ID))
}

func TestCreateWithoutWelcome(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t))
	signIn(t, c, "ana@docente.uss.cl")

	conv, err := c.updater.NewConversation(ctx, gateway.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, conv.Title)
	assert.Empty(t, c.updater.Store().Messages(conv.ID))
	assert.True(t, c.updater.Store().Loaded(conv.ID))
}

func TestConversationsAreIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	ana := newClient(srv)
	signIn(t, ana, "ana@docente.uss.cl")
	luis := newClient(srv)
	signIn(t, luis, "luis@docente.uss.cl")

	conv, err := ana.gateway.CreateConversation(ctx, gateway.CreateOptions{Title: "privada"})
	require.NoError(t, err)

	convs, err := luis.gateway.FetchConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)

	_, err = luis.gateway.FetchMessages(ctx, conv.ID)
	assert.True(t, apierr.IsNotFound(err))
	assert.Contains(t, err.Error(), "Conversación no encontrada")

	_, err = luis.gateway.SendMessage(ctx, conv.ID, "hola", nil)
	assert.True(t, apierr.IsNotFound(err))
}

func TestUnauthenticatedRequestsClearSession(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t))

	require.NoError(t, c.session.Set("not-a-jwt"))
	_, err := c.gateway.FetchConversations(ctx)
	assert.True(t, apierr.IsAuth(err))
	assert.False(t, c.session.Authenticated())

	err = c.auth.Login(ctx, "ana@docente.uss.cl", "secreto")
	assert.True(t, apierr.IsAuth(err))
	assert.Contains(t, err.Error(), "Credenciales inválidas")
}

func TestValidationResponses(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t))
	signIn(t, c, "ana@docente.uss.cl")

	err := c.gateway.Register(ctx, "ana@docente.uss.cl", "secreto")
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.Contains(t, err.Error(), "Email ya registrado")

	err = c.gateway.Register(ctx, "", "")
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.Contains(t, err.Error(), "Email requerido")

	conv, err := c.gateway.CreateConversation(ctx, gateway.CreateOptions{})
	require.NoError(t, err)
	_, err = c.gateway.SendMessage(ctx, conv.ID, "   ", nil)
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.Contains(t, err.Error(), "Texto vacío")

	_, err = c.gateway.RenameConversation(ctx, conv.ID, " ")
	assert.True(t, errors.Is(err, apierr.ErrValidation))
}

func TestChatbotDocumentsAndReports(t *testing.T) {
	ctx := context.Background()
	c := newClient(newServer(t))
	signIn(t, c, "ana@docente.uss.cl")

	bot, err := c.gateway.CreateChatbot(ctx, "Biblioteca", "Horarios y servicios")
	require.NoError(t, err)
	assert.True(t, bot.Active)

	doc, err := c.gateway.UploadDocument(ctx, bot.ID, "horarios.txt", strings.NewReader("La biblioteca abre a las ocho"))
	require.NoError(t, err)
	assert.Equal(t, "horarios.txt", doc.Name)
	assert.Equal(t, bot.ID, doc.ChatbotID)

	bots, err := c.gateway.ListChatbots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, 1, bots[0].DocumentsCount)

	_, err = c.gateway.UploadDocument(ctx, bot.ID+100, "x.txt", strings.NewReader("x"))
	assert.True(t, apierr.IsNotFound(err))

	conv, err := c.updater.NewConversation(ctx, gateway.CreateOptions{ChatbotID: &bot.ID})
	require.NoError(t, err)
	require.NotNil(t, conv.ChatbotID)

	reply, err := c.updater.SendMessage(ctx, conv.ID, "¿Cuándo abre la biblioteca?")
	require.NoError(t, err)
	assert.Equal(t, []string{"horarios.txt"}, reply.Sources)

	report, err := c.gateway.SubmitReport(ctx, gateway.ReportInput{ConversationID: &conv.ID, Type: "respuesta_incorrecta", Comment: "no"})
	require.NoError(t, err)
	assert.Equal(t, "pendiente", report.Status)
	require.NotNil(t, report.ConversationID)

	_, err = c.gateway.SubmitReport(ctx, gateway.ReportInput{Type: ""})
	assert.True(t, errors.Is(err, apierr.ErrValidation))
}

func TestHealth(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := NewHandler(database, llm.New(nil, database), zap.NewNop(), "test-secret", time.Hour)
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("CLT", -3*60*60))
	h.now = func() time.Time { return at }

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, at.Equal(body.Timestamp))
	assert.Equal(t, time.UTC, body.Timestamp.Location())
}
