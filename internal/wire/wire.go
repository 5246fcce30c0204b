// Package wire defines the JSON bodies exchanged with the chatbot backend and
// their mapping onto models.
package wire

import (
	"time"

	"github.com/RichardoC/chatsync/internal/models"
)

// SenderAI is the backend's spelling of the assistant sender.
const SenderAI = "ai"

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ChatbotID *int64    `json:"chatbot_id,omitempty"`
}

type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []string  `json:"sources,omitempty"`
}

type CreateConversationRequest struct {
	Title       string `json:"title,omitempty"`
	ChatbotID   *int64 `json:"chatbot_id,omitempty"`
	WithWelcome *bool  `json:"with_welcome,omitempty"`
}

type RenameConversationRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Text      string `json:"text"`
	ChatbotID *int64 `json:"chatbot_id,omitempty"`
}

type ChatResponse struct {
	Response      string   `json:"response"`
	Sources       []string `json:"sources"`
	UserMessageID int64    `json:"user_message_id,omitempty"`
	MessageID     int64    `json:"message_id,omitempty"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateChatbotRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type CreateReportRequest struct {
	ReportType string `json:"report_type"`
	Comment    string `json:"comment,omitempty"`
}

// ErrorBody is the shape of non-2xx responses. Detail is either a string or a
// list of {msg} objects.
type ErrorBody struct {
	Detail interface{} `json:"detail,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (c Conversation) Model() models.Conversation {
	return models.Conversation{
		ID:        models.RemoteID(c.ID),
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		ChatbotID: c.ChatbotID,
	}
}

func (m Message) Model(conversationID models.ID) models.Message {
	return models.Message{
		ID:             models.RemoteID(m.ID),
		ConversationID: conversationID,
		Sender:         ParseSender(m.Sender),
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
		Sources:        m.Sources,
		Status:         models.StatusSent,
	}
}

func ParseSender(s string) models.Sender {
	if s == SenderAI || s == string(models.SenderAssistant) {
		return models.SenderAssistant
	}
	return models.SenderUser
}

func FormatSender(s models.Sender) string {
	if s == models.SenderAssistant {
		return SenderAI
	}
	return string(models.SenderUser)
}
