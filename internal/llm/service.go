package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/db"
	"github.com/RichardoC/chatsync/internal/wire"
)

const (
	historyTurns = 10
	maxDocuments = 3
	fallbackText = "No lo sé con la información disponible"
)

const systemPrompt = `Eres el asistente de IA de la Universidad San Sebastián para docentes.
Responde en español, de forma breve y precisa.
Usa solo la información de los documentos y de la conversación.
Si la información no alcanza, responde exactamente: "` + fallbackText + `".`

type Reply struct {
	Text    string
	Sources []string
}

type Service struct {
	llm     llms.Model
	db      *db.Database
	logger  *zap.Logger
	timeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewOpenAI connects to an OpenAI-compatible endpoint such as ollama.
func NewOpenAI(baseURL, token, model string) (llms.Model, error) {
	if token == "" {
		token = "unused"
	}
	return openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
}

// New builds the reply service. A nil model answers with canned replies.
func New(model llms.Model, database *db.Database, options ...Option) *Service {
	s := &Service{
		llm:     model,
		db:      database,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Reply answers the latest user message of a conversation. The user message
// must already be saved so it is part of the history.
func (s *Service) Reply(ctx context.Context, conversationID int64, chatbotID *int64, text string) (Reply, error) {
	var docs []db.DocumentMatch
	if chatbotID != nil {
		var err error
		docs, err = s.db.SearchDocuments(ctx, *chatbotID, text, maxDocuments)
		if err != nil {
			s.logger.Warn("failed to search documents", zap.Error(err), zap.Int64("chatbot_id", *chatbotID))
			docs = nil
		}
	}
	sources := make([]string, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, d.Name)
	}

	if s.llm == nil {
		return Reply{Text: canned(text), Sources: sources}, nil
	}

	history, err := s.db.GetConversationHistory(ctx, conversationID, historyTurns)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to get conversation history: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, buildPrompt(docs, history, text))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to generate completion: %w", err)
	}

	completion = strings.Trim(strings.TrimSpace(completion), `"`)
	if completion == "" {
		completion = fallbackText
	}
	s.logger.Debug("generated reply",
		zap.Int64("conversation_id", conversationID),
		zap.Int("documents", len(docs)),
		zap.Int("history", len(history)))
	return Reply{Text: completion, Sources: sources}, nil
}

func buildPrompt(docs []db.DocumentMatch, history []wire.Message, text string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	if len(docs) > 0 {
		b.WriteString("\n\nDocumentos:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "[%s]\n%s\n", d.Name, d.Content)
		}
	}

	// the current message is already the last history entry
	if n := len(history); n > 0 && history[n-1].Sender != wire.SenderAI && history[n-1].Text == text {
		history = history[:n-1]
	}
	if len(history) > 0 {
		b.WriteString("\nConversación:\n")
		for _, m := range history {
			role := "Docente"
			if m.Sender == wire.SenderAI {
				role = "Asistente"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, m.Text)
		}
	}

	fmt.Fprintf(&b, "\nDocente: %s\nAsistente:", text)
	return b.String()
}

func canned(text string) string {
	replies := []string{
		fmt.Sprintf("Gracias por tu mensaje: '%s'. ¿En qué más puedo ayudarte?", text),
		"Entiendo tu consulta. ¿Podrías proporcionar más detalles?",
		"Esa es una buena pregunta. ¿Te gustaría que profundicemos en el tema?",
		"He recibido tu mensaje. ¿Hay algo específico en lo que puedas ayudarte?",
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	return replies[h.Sum32()%uint32(len(replies))]
}
