package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mattn/go-sqlite3"

	"github.com/RichardoC/chatsync/internal/models"
	"github.com/RichardoC/chatsync/internal/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chatbots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    chatbot_id INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (chatbot_id) REFERENCES chatbots(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS conversations_user_updated ON conversations(user_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL,
    sender TEXT NOT NULL,
    text TEXT NOT NULL,
    sources TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chatbot_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (chatbot_id) REFERENCES chatbots(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts4(
    name,
    content,
    tokenize=unicode61
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(docid, name, content)
    VALUES (new.id, new.name, new.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    DELETE FROM documents_fts WHERE docid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    DELETE FROM documents_fts WHERE docid = old.id;
    INSERT INTO documents_fts(docid, name, content)
    VALUES (new.id, new.name, new.content);
END;

CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    conversation_id INTEGER,
    report_type TEXT NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pendiente',
    created_at TIMESTAMP NOT NULL
);`

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// DocumentMatch is a document returned by a full-text search.
type DocumentMatch struct {
	models.Document
	Content string
}

type Database struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	user := &User{Email: email, PasswordHash: passwordHash, CreatedAt: db.now()}
	err := db.db.QueryRowContext(ctx, `
        INSERT INTO users (email, password_hash, created_at)
        VALUES (?, ?, ?)
        RETURNING id`, email, passwordHash, user.CreatedAt).Scan(&user.ID)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := db.db.QueryRowContext(ctx, `
        SELECT id, email, password_hash, created_at
        FROM users
        WHERE email = ?`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) CreateChatbot(ctx context.Context, ownerID int64, title, description string) (models.Chatbot, error) {
	now := db.now()
	bot := models.Chatbot{Title: title, Description: description, Active: true, CreatedAt: now, UpdatedAt: now}
	err := db.db.QueryRowContext(ctx, `
        INSERT INTO chatbots (owner_id, title, description, is_active, created_at, updated_at)
        VALUES (?, ?, ?, 1, ?, ?)
        RETURNING id`, ownerID, title, description, now, now).Scan(&bot.ID)
	return bot, err
}

func (db *Database) GetChatbot(ctx context.Context, id int64) (models.Chatbot, error) {
	var bot models.Chatbot
	err := db.db.QueryRowContext(ctx, `
        SELECT c.id, c.title, c.description, c.is_active, c.created_at, c.updated_at,
               (SELECT COUNT(*) FROM documents d WHERE d.chatbot_id = c.id)
        FROM chatbots c
        WHERE c.id = ?`, id).Scan(&bot.ID, &bot.Title, &bot.Description, &bot.Active,
		&bot.CreatedAt, &bot.UpdatedAt, &bot.DocumentsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chatbot{}, ErrNotFound
	}
	return bot, err
}

func (db *Database) ListChatbots(ctx context.Context) ([]models.Chatbot, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT c.id, c.title, c.description, c.is_active, c.created_at, c.updated_at,
               (SELECT COUNT(*) FROM documents d WHERE d.chatbot_id = c.id)
        FROM chatbots c
        WHERE c.is_active = 1
        ORDER BY c.created_at DESC, c.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bots := make([]models.Chatbot, 0)
	for rows.Next() {
		var bot models.Chatbot
		if err := rows.Scan(&bot.ID, &bot.Title, &bot.Description, &bot.Active,
			&bot.CreatedAt, &bot.UpdatedAt, &bot.DocumentsCount); err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

func (db *Database) CreateConversation(ctx context.Context, userID int64, title string, chatbotID *int64) (wire.Conversation, error) {
	now := db.now()
	conv := wire.Conversation{Title: title, CreatedAt: now, UpdatedAt: now, ChatbotID: chatbotID}
	err := db.db.QueryRowContext(ctx, `
        INSERT INTO conversations (user_id, title, chatbot_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id`, userID, title, chatbotID, now, now).Scan(&conv.ID)
	return conv, err
}

// GetConversation returns ErrNotFound when the conversation does not exist or
// belongs to another user.
func (db *Database) GetConversation(ctx context.Context, userID, id int64) (wire.Conversation, error) {
	var conv wire.Conversation
	var chatbotID sql.NullInt64
	err := db.db.QueryRowContext(ctx, `
        SELECT id, title, chatbot_id, created_at, updated_at
        FROM conversations
        WHERE id = ? AND user_id = ?`, id, userID).Scan(&conv.ID, &conv.Title, &chatbotID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.Conversation{}, ErrNotFound
	}
	if err != nil {
		return wire.Conversation{}, err
	}
	conv.ChatbotID = nullable(chatbotID)
	return conv, nil
}

func (db *Database) ListConversations(ctx context.Context, userID int64) ([]wire.Conversation, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, title, chatbot_id, created_at, updated_at
        FROM conversations
        WHERE user_id = ?
        ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]wire.Conversation, 0)
	for rows.Next() {
		var conv wire.Conversation
		var chatbotID sql.NullInt64
		if err := rows.Scan(&conv.ID, &conv.Title, &chatbotID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conv.ChatbotID = nullable(chatbotID)
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) RenameConversation(ctx context.Context, userID, id int64, title string) (wire.Conversation, error) {
	res, err := db.db.ExecContext(ctx, `
        UPDATE conversations SET title = ?, updated_at = ?
        WHERE id = ? AND user_id = ?`, title, db.now(), id, userID)
	if err := affected(res, err); err != nil {
		return wire.Conversation{}, err
	}
	return db.GetConversation(ctx, userID, id)
}

func (db *Database) TouchConversation(ctx context.Context, id int64) (time.Time, error) {
	now := db.now()
	res, err := db.db.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, id)
	return now, affected(res, err)
}

func (db *Database) DeleteConversation(ctx context.Context, userID, id int64) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ? AND user_id = ?", id, userID)
	if err := affected(res, err); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE reports SET conversation_id = NULL WHERE conversation_id = ?", id); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *Database) SaveMessage(ctx context.Context, conversationID int64, sender, text string, sources []string) (wire.Message, error) {
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return wire.Message{}, err
	}

	msg := wire.Message{Sender: sender, Text: text, Sources: sources, CreatedAt: db.now()}
	err = db.db.QueryRowContext(ctx, `
        INSERT INTO messages (conversation_id, sender, text, sources, created_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id`, conversationID, sender, text, string(encoded), msg.CreatedAt).Scan(&msg.ID)
	return msg, err
}

// ListMessages returns the transcript oldest first.
func (db *Database) ListMessages(ctx context.Context, conversationID int64) ([]wire.Message, error) {
	return db.queryMessages(ctx, `
        SELECT id, sender, text, sources, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, id ASC`, conversationID)
}

// GetConversationHistory returns the last limit messages, oldest first.
func (db *Database) GetConversationHistory(ctx context.Context, conversationID int64, limit int) ([]wire.Message, error) {
	messages, err := db.queryMessages(ctx, `
        SELECT id, sender, text, sources, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (db *Database) queryMessages(ctx context.Context, query string, args ...interface{}) ([]wire.Message, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]wire.Message, 0)
	for rows.Next() {
		var msg wire.Message
		var sources string
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Text, &sources, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources of message %d: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *Database) SaveDocument(ctx context.Context, chatbotID int64, name, content string) (models.Document, error) {
	doc := models.Document{ChatbotID: chatbotID, Name: name, CreatedAt: db.now()}
	err := db.db.QueryRowContext(ctx, `
        INSERT INTO documents (chatbot_id, name, content, created_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`, chatbotID, name, content, doc.CreatedAt).Scan(&doc.ID)
	return doc, err
}

// SearchDocuments runs a full-text query over a chatbot's documents. The
// query is reduced to its words, so user input never reaches MATCH syntax.
func (db *Database) SearchDocuments(ctx context.Context, chatbotID int64, query string, limit int) ([]DocumentMatch, error) {
	match := matchExpression(query)
	if match == "" {
		return []DocumentMatch{}, nil
	}

	rows, err := db.db.QueryContext(ctx, `
        SELECT d.id, d.chatbot_id, d.name, d.content, d.created_at
        FROM documents d
        JOIN documents_fts fts ON d.id = fts.docid
        WHERE documents_fts MATCH ? AND d.chatbot_id = ?
        ORDER BY d.created_at DESC, d.id DESC
        LIMIT ?`, match, chatbotID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	results := make([]DocumentMatch, 0)
	for rows.Next() {
		var m DocumentMatch
		if err := rows.Scan(&m.ID, &m.ChatbotID, &m.Name, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (db *Database) CreateReport(ctx context.Context, userID int64, conversationID *int64, reportType, comment string) (models.Report, error) {
	r := models.Report{ConversationID: conversationID, Type: reportType, Comment: comment, Status: "pendiente", CreatedAt: db.now()}
	err := db.db.QueryRowContext(ctx, `
        INSERT INTO reports (user_id, conversation_id, report_type, comment, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id`, userID, conversationID, reportType, comment, r.Status, r.CreatedAt).Scan(&r.ID)
	return r, err
}

// matchExpression turns free text into an OR of quoted terms.
func matchExpression(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
