package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/db"
	"github.com/RichardoC/chatsync/internal/llm"
	"github.com/RichardoC/chatsync/internal/wire"
)

const (
	DefaultTitle   = "Nueva conversación"
	WelcomeText    = "¡Hola! Soy tu asistente de IA USS. ¿Cómo puedo ayudarte hoy?"
	maxUploadBytes = 10 << 20
)

type Handler struct {
	db       *db.Database
	llm      *llm.Service
	logger   *zap.Logger
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewHandler(database *db.Database, llmService *llm.Service, logger *zap.Logger, secret string, tokenTTL time.Duration) *Handler {
	return &Handler{
		db:       database,
		llm:      llmService,
		logger:   logger,
		secret:   []byte(secret),
		tokenTTL: defaultTTL(tokenTTL),
		now:      time.Now,
	}
}

// fieldError mirrors one entry of a validation detail list.
type fieldError struct {
	Loc []string `json:"loc,omitempty"`
	Msg string   `json:"msg"`
}

func (h *Handler) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": h.now().UTC()})
	})
	r.POST("/login/", h.Login)
	r.POST("/register/", h.Register)

	authed := r.Group("/", h.RequireUser())
	authed.GET("/conversations/", h.ListConversations)
	authed.POST("/conversations/", h.CreateConversation)
	authed.PATCH("/conversations/:id/", h.RenameConversation)
	authed.DELETE("/conversations/:id/", h.DeleteConversation)
	authed.GET("/conversations/:id/messages/", h.ListMessages)
	authed.POST("/conversations/:id/messages/", h.SendMessage)
	authed.GET("/chatbots/", h.ListChatbots)
	authed.POST("/chatbots/", h.CreateChatbot)
	authed.POST("/chatbots/:id/documents/", h.UploadDocument)
	authed.POST("/reports/", h.CreateReport)
	return r
}

func (h *Handler) ListConversations(c *gin.Context) {
	conversations, err := h.db.ListConversations(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.internalError(c, "failed to list conversations", err)
		return
	}
	h.logger.Debug("retrieved conversations", zap.Int("count", len(conversations)))
	c.JSON(http.StatusOK, conversations)
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req wire.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Msg: "Cuerpo inválido"}})
		return
	}
	ctx := c.Request.Context()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle
	}
	if req.ChatbotID != nil {
		if _, err := h.db.GetChatbot(ctx, *req.ChatbotID); err != nil {
			h.lookupError(c, err, "Chatbot no encontrado")
			return
		}
	}

	conv, err := h.db.CreateConversation(ctx, currentUser(c).ID, title, req.ChatbotID)
	if err != nil {
		h.internalError(c, "failed to create conversation", err)
		return
	}

	if req.WithWelcome == nil || *req.WithWelcome {
		if _, err := h.db.SaveMessage(ctx, conv.ID, wire.SenderAI, WelcomeText, nil); err != nil {
			h.internalError(c, "failed to save welcome message", err)
			return
		}
		if conv.UpdatedAt, err = h.db.TouchConversation(ctx, conv.ID); err != nil {
			h.internalError(c, "failed to touch conversation", err)
			return
		}
	}

	h.logger.Info("conversation created", zap.Int64("conversation_id", conv.ID))
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) RenameConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req wire.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Loc: []string{"body", "title"}, Msg: "Cuerpo inválido"}})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		detail(c, http.StatusBadRequest, "Título vacío")
		return
	}

	conv, err := h.db.RenameConversation(c.Request.Context(), currentUser(c).ID, id, title)
	if err != nil {
		h.lookupError(c, err, "Conversación no encontrada")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.db.DeleteConversation(c.Request.Context(), currentUser(c).ID, id); err != nil {
		h.lookupError(c, err, "Conversación no encontrada")
		return
	}
	h.logger.Info("conversation deleted", zap.Int64("conversation_id", id))
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.db.GetConversation(ctx, currentUser(c).ID, id); err != nil {
		h.lookupError(c, err, "Conversación no encontrada")
		return
	}

	messages, err := h.db.ListMessages(ctx, id)
	if err != nil {
		h.internalError(c, "failed to list messages", err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	conv, err := h.db.GetConversation(ctx, currentUser(c).ID, id)
	if err != nil {
		h.lookupError(c, err, "Conversación no encontrada")
		return
	}

	var req wire.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Loc: []string{"body", "text"}, Msg: "Cuerpo inválido"}})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		detail(c, http.StatusBadRequest, "Texto vacío")
		return
	}
	chatbotID := req.ChatbotID
	if chatbotID == nil {
		chatbotID = conv.ChatbotID
	}

	userMsg, err := h.db.SaveMessage(ctx, id, "user", text, nil)
	if err != nil {
		h.internalError(c, "failed to save user message", err)
		return
	}

	reply, err := h.llm.Reply(ctx, id, chatbotID, text)
	if err != nil {
		h.logger.Error("failed to process message", zap.Error(err), zap.Int64("conversation_id", id))
		detail(c, http.StatusBadGateway, "Error al generar respuesta")
		return
	}

	aiMsg, err := h.db.SaveMessage(ctx, id, wire.SenderAI, reply.Text, reply.Sources)
	if err != nil {
		h.internalError(c, "failed to save reply", err)
		return
	}
	if _, err := h.db.TouchConversation(ctx, id); err != nil {
		h.internalError(c, "failed to touch conversation", err)
		return
	}

	c.JSON(http.StatusOK, wire.ChatResponse{
		Response:      aiMsg.Text,
		Sources:       aiMsg.Sources,
		UserMessageID: userMsg.ID,
		MessageID:     aiMsg.ID,
	})
}

func (h *Handler) ListChatbots(c *gin.Context) {
	bots, err := h.db.ListChatbots(c.Request.Context())
	if err != nil {
		h.internalError(c, "failed to list chatbots", err)
		return
	}
	c.JSON(http.StatusOK, bots)
}

func (h *Handler) CreateChatbot(c *gin.Context) {
	var req wire.CreateChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Msg: "Cuerpo inválido"}})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		detail(c, http.StatusBadRequest, "Título requerido")
		return
	}

	bot, err := h.db.CreateChatbot(c.Request.Context(), currentUser(c).ID, title, strings.TrimSpace(req.Description))
	if err != nil {
		h.internalError(c, "failed to create chatbot", err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *Handler) UploadDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.db.GetChatbot(ctx, id); err != nil {
		h.lookupError(c, err, "Chatbot no encontrado")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		detail(c, http.StatusBadRequest, "No se proporcionaron archivos")
		return
	}
	if header.Size > maxUploadBytes {
		detail(c, http.StatusRequestEntityTooLarge, "Archivo demasiado grande")
		return
	}
	f, err := header.Open()
	if err != nil {
		h.internalError(c, "failed to open upload", err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		h.internalError(c, "failed to read upload", err)
		return
	}
	if !utf8.Valid(content) {
		detail(c, http.StatusBadRequest, "Formato de archivo no soportado")
		return
	}

	doc, err := h.db.SaveDocument(ctx, id, header.Filename, string(content))
	if err != nil {
		h.internalError(c, "failed to save document", err)
		return
	}
	h.logger.Info("document uploaded", zap.Int64("chatbot_id", id), zap.String("name", doc.Name))
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) CreateReport(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)

	var conversationID *int64
	if raw := c.Query("conversation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			detail(c, http.StatusUnprocessableEntity, []fieldError{{Loc: []string{"query", "conversation_id"}, Msg: "ID inválido"}})
			return
		}
		if _, err := h.db.GetConversation(ctx, user.ID, id); err != nil {
			h.lookupError(c, err, "Conversación no encontrada")
			return
		}
		conversationID = &id
	}

	var req wire.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ReportType) == "" {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Loc: []string{"body", "report_type"}, Msg: "Tipo de reporte requerido"}})
		return
	}

	report, err := h.db.CreateReport(ctx, user.ID, conversationID, req.ReportType, req.Comment)
	if err != nil {
		h.internalError(c, "failed to create report", err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		detail(c, http.StatusUnprocessableEntity, []fieldError{{Loc: []string{"path", "id"}, Msg: "ID inválido"}})
		return 0, false
	}
	return id, true
}

func detail(c *gin.Context, status int, d interface{}) {
	c.AbortWithStatusJSON(status, gin.H{"detail": d})
}

func (h *Handler) lookupError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, db.ErrNotFound) {
		detail(c, http.StatusNotFound, notFound)
		return
	}
	h.internalError(c, "lookup failed", err)
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
	detail(c, http.StatusInternalServerError, "Error interno del servidor")
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
