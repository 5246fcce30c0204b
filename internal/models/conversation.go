package models

import "time"

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

type Message struct {
	ID             ID
	ConversationID ID
	Sender         Sender
	Text           string
	CreatedAt      time.Time
	Sources        []string // only on assistant replies produced with retrieval
	Status         MessageStatus
}

type Conversation struct {
	ID        ID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ChatbotID *int64
}

type Chatbot struct {
	ID             int64     `json:"id" yaml:"id"`
	Title          string    `json:"title" yaml:"title"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty"`
	Active         bool      `json:"is_active" yaml:"active"`
	DocumentsCount int       `json:"documents_count" yaml:"documents_count"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

type Document struct {
	ID        int64     `json:"id" yaml:"id"`
	ChatbotID int64     `json:"chatbot_id" yaml:"chatbot_id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type Report struct {
	ID             int64     `json:"id" yaml:"id"`
	ConversationID *int64    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Type           string    `json:"report_type" yaml:"type"`
	Comment        string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	Status         string    `json:"status" yaml:"status"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}
