// Package gateway translates conversation operations into calls against the
// chatbot backend's REST API. Every call is a single request/response; retries
// and caching are left to callers.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/models"
	"github.com/RichardoC/chatsync/internal/session"
	"github.com/RichardoC/chatsync/internal/wire"
)

type Client struct {
	http    *resty.Client
	session *session.Session
	logger  *zap.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, sess *session.Session, options ...Option) *Client {
	c := &Client{
		http:    resty.New(),
		session: sess,
		logger:  zap.NewNop(),
	}
	for _, o := range options {
		o(c)
	}

	c.http.
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetLogger(c.logger.Sugar()).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if token := c.session.Token(); token != "" {
				r.SetAuthToken(token)
			}
			return nil
		})
	return c
}

type CreateOptions struct {
	Title       string
	ChatbotID   *int64
	WithWelcome bool
}

type Reply struct {
	Text               string
	Sources            []string
	UserMessageID      models.ID // zero when the backend does not report it
	AssistantMessageID models.ID
}

type ReportInput struct {
	ConversationID *models.ID
	Type           string
	Comment        string
}

func (c *Client) FetchConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []wire.Conversation
	if err := c.do(ctx, "fetch conversations", http.MethodGet, "/conversations/", nil, &out); err != nil {
		return nil, err
	}
	convs := make([]models.Conversation, 0, len(out))
	for _, dto := range out {
		convs = append(convs, dto.Model())
	}
	return convs, nil
}

func (c *Client) CreateConversation(ctx context.Context, opts CreateOptions) (models.Conversation, error) {
	withWelcome := opts.WithWelcome
	body := wire.CreateConversationRequest{
		Title:       opts.Title,
		ChatbotID:   opts.ChatbotID,
		WithWelcome: &withWelcome,
	}

	var out wire.Conversation
	err := c.do(ctx, "create conversation", http.MethodPost, "/conversations/", func(r *resty.Request) {
		r.SetBody(body)
	}, &out)
	if err != nil {
		return models.Conversation{}, err
	}
	return out.Model(), nil
}

func (c *Client) RenameConversation(ctx context.Context, id models.ID, title string) (models.Conversation, error) {
	const op = "rename conversation"
	rid, err := remote(op, id)
	if err != nil {
		return models.Conversation{}, err
	}

	var out wire.Conversation
	err = c.do(ctx, op, http.MethodPatch, "/conversations/{id}/", func(r *resty.Request) {
		r.SetPathParam("id", rid).SetBody(wire.RenameConversationRequest{Title: title})
	}, &out)
	if err != nil {
		return models.Conversation{}, err
	}
	return out.Model(), nil
}

func (c *Client) DeleteConversation(ctx context.Context, id models.ID) error {
	const op = "delete conversation"
	rid, err := remote(op, id)
	if err != nil {
		return err
	}
	return c.do(ctx, op, http.MethodDelete, "/conversations/{id}/", func(r *resty.Request) {
		r.SetPathParam("id", rid)
	}, nil)
}

func (c *Client) FetchMessages(ctx context.Context, conversationID models.ID) ([]models.Message, error) {
	const op = "fetch messages"
	rid, err := remote(op, conversationID)
	if err != nil {
		return nil, err
	}

	var out []wire.Message
	err = c.do(ctx, op, http.MethodGet, "/conversations/{id}/messages/", func(r *resty.Request) {
		r.SetPathParam("id", rid)
	}, &out)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(out))
	for _, dto := range out {
		msgs = append(msgs, dto.Model(conversationID))
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID models.ID, text string, chatbotID *int64) (Reply, error) {
	const op = "send message"
	rid, err := remote(op, conversationID)
	if err != nil {
		return Reply{}, err
	}

	var out wire.ChatResponse
	err = c.do(ctx, op, http.MethodPost, "/conversations/{id}/messages/", func(r *resty.Request) {
		r.SetPathParam("id", rid).SetBody(wire.SendMessageRequest{Text: text, ChatbotID: chatbotID})
	}, &out)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Text: out.Response, Sources: out.Sources}
	if out.UserMessageID > 0 {
		reply.UserMessageID = models.RemoteID(out.UserMessageID)
	}
	if out.MessageID > 0 {
		reply.AssistantMessageID = models.RemoteID(out.MessageID)
	}
	return reply, nil
}

// Login exchanges credentials for an access token. The caller installs it in
// the session.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out wire.Token
	err := c.do(ctx, "login", http.MethodPost, "/login/", func(r *resty.Request) {
		r.SetFormData(map[string]string{
			"username": username,
			"password": password,
		})
	}, &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &apierr.Error{Kind: apierr.Server, Op: "login", Message: "empty access token"}
	}
	return out.AccessToken, nil
}

func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.do(ctx, "register", http.MethodPost, "/register/", func(r *resty.Request) {
		r.SetBody(wire.RegisterRequest{Email: email, Password: password})
	}, nil)
}

func (c *Client) ListChatbots(ctx context.Context) ([]models.Chatbot, error) {
	var out []models.Chatbot
	if err := c.do(ctx, "list chatbots", http.MethodGet, "/chatbots/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateChatbot(ctx context.Context, title, description string) (models.Chatbot, error) {
	var out models.Chatbot
	err := c.do(ctx, "create chatbot", http.MethodPost, "/chatbots/", func(r *resty.Request) {
		r.SetBody(wire.CreateChatbotRequest{Title: title, Description: description})
	}, &out)
	return out, err
}

func (c *Client) UploadDocument(ctx context.Context, chatbotID int64, name string, content io.Reader) (models.Document, error) {
	var out models.Document
	err := c.do(ctx, "upload document", http.MethodPost, "/chatbots/{id}/documents/", func(r *resty.Request) {
		r.SetPathParam("id", strconv.FormatInt(chatbotID, 10)).SetFileReader("file", name, content)
	}, &out)
	return out, err
}

func (c *Client) SubmitReport(ctx context.Context, in ReportInput) (models.Report, error) {
	const op = "submit report"
	var conversationID string
	if in.ConversationID != nil {
		rid, err := remote(op, *in.ConversationID)
		if err != nil {
			return models.Report{}, err
		}
		conversationID = rid
	}

	var out models.Report
	err := c.do(ctx, op, http.MethodPost, "/reports/", func(r *resty.Request) {
		if conversationID != "" {
			r.SetQueryParam("conversation_id", conversationID)
		}
		r.SetBody(wire.CreateReportRequest{ReportType: in.Type, Comment: in.Comment})
	}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, configure func(*resty.Request), out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if configure != nil {
		configure(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return apierr.NewNetwork(op, err)
	}

	status := resp.StatusCode()
	if !resp.IsSuccess() {
		if status == http.StatusUnauthorized {
			c.session.Clear()
		}
		e := apierr.FromStatus(op, status, errorMessage(resp.Body()))
		c.logger.Debug("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("message", e.Message))
		return e
	}

	if out == nil || status == http.StatusNoContent || status == http.StatusResetContent || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &apierr.Error{Kind: apierr.Server, Op: op, Status: status, Message: "malformed response body", Err: err}
	}
	return nil
}

// errorMessage extracts detail/error from an error body; error wins when both
// are present.
func errorMessage(body []byte) string {
	var eb wire.ErrorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return ""
	}
	if eb.Error != "" {
		return eb.Error
	}

	switch d := eb.Detail.(type) {
	case string:
		return d
	case []interface{}:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			if m, ok := item.(map[string]interface{}); ok {
				if msg, ok := m["msg"].(string); ok {
					parts = append(parts, msg)
					continue
				}
			}
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(d)
	}
}

func remote(op string, id models.ID) (string, error) {
	n, ok := id.Remote()
	if !ok {
		return "", &apierr.Error{
			Kind:    apierr.Validation,
			Op:      op,
			Message: fmt.Sprintf("conversation %s is not known to the server", id),
		}
	}
	return strconv.FormatInt(n, 10), nil
}
