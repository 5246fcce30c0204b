// Package updater applies user actions to the store optimistically and
// reconciles them with the backend.
//
// A sent message moves through pending, in-flight and then resolved or failed.
// The user's message is visible before the network call starts and is never
// rolled back. Deletes are pessimistic. Creation failures are surfaced and
// never fork local-only conversations.
package updater

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/gateway"
	"github.com/RichardoC/chatsync/internal/models"
	"github.com/RichardoC/chatsync/internal/notify"
	"github.com/RichardoC/chatsync/internal/store"
)

const (
	FailedReplyText = "Error al obtener respuesta del asistente."
	EmptyReplyText  = "No lo sé con la información disponible"
)

// Gateway is the subset of gateway.Client the updater drives.
type Gateway interface {
	FetchConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, opts gateway.CreateOptions) (models.Conversation, error)
	RenameConversation(ctx context.Context, id models.ID, title string) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id models.ID) error
	FetchMessages(ctx context.Context, conversationID models.ID) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID models.ID, text string, chatbotID *int64) (gateway.Reply, error)
}

var _ Gateway = (*gateway.Client)(nil)

type Updater struct {
	store    *store.Store
	gateway  Gateway
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	prefetch int

	mu       sync.Mutex
	seq      map[models.ID]uint64 // latest issued send token per conversation
	inFlight map[models.ID]int
	changes  map[models.ID]uint64 // bumped whenever a send starts or settles
	active   models.ID
}

type Option func(*Updater)

func WithLogger(logger *zap.Logger) Option {
	return func(u *Updater) {
		u.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		u.now = now
	}
}

// WithPrefetch sets how many of the most recent conversations Refresh loads
// messages for.
func WithPrefetch(n int) Option {
	return func(u *Updater) {
		u.prefetch = n
	}
}

func New(st *store.Store, gw Gateway, notifier notify.Notifier, options ...Option) *Updater {
	u := &Updater{
		store:    st,
		gateway:  gw,
		notifier: notifier,
		logger:   zap.NewNop(),
		now:      time.Now,
		prefetch: 5,
		seq:      make(map[models.ID]uint64),
		inFlight: make(map[models.ID]int),
		changes:  make(map[models.ID]uint64),
	}
	for _, o := range options {
		o(u)
	}
	if u.notifier == nil {
		u.notifier = notify.Nop{}
	}
	return u
}

func (u *Updater) Store() *store.Store {
	return u.store
}

func (u *Updater) Active() models.ID {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

func (u *Updater) SetActive(id models.ID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = id
}

// InFlight reports whether a send is outstanding for the conversation.
func (u *Updater) InFlight(id models.ID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.inFlight[id] > 0
}

// SendMessage appends the user's message immediately, then asks the backend
// for the assistant reply. The returned message is the reply that was
// appended; it is the zero Message when a newer send superseded this one.
func (u *Updater) SendMessage(ctx context.Context, convID models.ID, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, apierr.Validationf("text", "message text is empty")
	}
	conv, ok := u.store.Get(convID)
	if !ok {
		return models.Message{}, apierr.NotFoundf("conversation %s not in store", convID)
	}

	userMsg := models.Message{
		ID:        models.LocalID(),
		Sender:    models.SenderUser,
		Text:      text,
		CreatedAt: u.now(),
		Status:    models.StatusPending,
	}
	if err := u.store.AppendMessage(convID, userMsg); err != nil {
		return models.Message{}, err
	}

	token := u.begin(convID)
	reply, err := u.gateway.SendMessage(ctx, convID, text, conv.ChatbotID)
	latest := u.end(convID, token)

	if err != nil {
		return u.fail(ctx, convID, userMsg.ID, err)
	}

	userID := userMsg.ID
	u.store.UpdateMessage(convID, userMsg.ID, func(m *models.Message) {
		m.Status = models.StatusSent
		if !reply.UserMessageID.IsZero() {
			m.ID = reply.UserMessageID
			userID = m.ID
		}
	})

	if !latest {
		// A newer send owns the conversation now; the server still has this
		// exchange, so the transcript is re-fetched on next open.
		u.store.MarkStale(convID)
		u.logger.Debug("discarding superseded reply",
			zap.Stringer("conversation_id", convID),
			zap.Uint64("token", token))
		return models.Message{}, nil
	}

	replyText := reply.Text
	if strings.TrimSpace(replyText) == "" {
		replyText = EmptyReplyText
	}
	assistantMsg := models.Message{
		ID:        reply.AssistantMessageID,
		Sender:    models.SenderAssistant,
		Text:      replyText,
		CreatedAt: u.now(),
		Sources:   reply.Sources,
		Status:    models.StatusSent,
	}
	if assistantMsg.ID.IsZero() {
		assistantMsg.ID = models.LocalID()
		u.store.MarkStale(convID)
	}
	if err := u.store.AppendMessage(convID, assistantMsg); err != nil {
		// conversation was deleted while the reply was in flight
		u.logger.Debug("reply for removed conversation", zap.Stringer("conversation_id", convID))
		return models.Message{}, err
	}
	u.store.Touch(convID, assistantMsg.CreatedAt)

	u.logger.Debug("message sent",
		zap.Stringer("conversation_id", convID),
		zap.Stringer("user_message_id", userID),
		zap.Stringer("reply_id", assistantMsg.ID),
		zap.Int("sources", len(reply.Sources)))
	assistantMsg.ConversationID = convID
	return assistantMsg, nil
}

func (u *Updater) fail(ctx context.Context, convID, userMsgID models.ID, cause error) (models.Message, error) {
	u.store.UpdateMessage(convID, userMsgID, func(m *models.Message) {
		m.Status = models.StatusFailed
	})

	errMsg := models.Message{
		ID:        models.LocalID(),
		Sender:    models.SenderAssistant,
		Text:      FailedReplyText,
		CreatedAt: u.now(),
		Status:    models.StatusFailed,
	}
	if err := u.store.AppendMessage(convID, errMsg); err != nil {
		u.logger.Debug("failed reply for removed conversation", zap.Stringer("conversation_id", convID))
	}

	u.logger.Warn("failed to send message", zap.Stringer("conversation_id", convID), zap.Error(cause))
	u.notifier.Notify(ctx, notify.Error("No se pudo enviar el mensaje", cause, convID))
	errMsg.ConversationID = convID
	return errMsg, fmt.Errorf("failed to send message: %w", cause)
}

func (u *Updater) begin(convID models.ID) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq[convID]++
	u.inFlight[convID]++
	u.changes[convID]++
	return u.seq[convID]
}

// end releases an in-flight slot and reports whether token is still the
// latest one issued for the conversation.
func (u *Updater) end(convID models.ID, token uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.changes[convID]++
	if u.inFlight[convID] > 0 {
		u.inFlight[convID]--
	}
	if u.inFlight[convID] == 0 {
		delete(u.inFlight, convID)
	}
	return u.seq[convID] == token
}

// invalidate makes every outstanding send for convID stale.
func (u *Updater) invalidate(convID models.ID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq[convID]++
	u.changes[convID]++
}

// NewConversation creates a conversation on the server, puts it at the head of
// the list, makes it active and loads its messages. Creation errors are
// returned as-is; no local placeholder is created.
func (u *Updater) NewConversation(ctx context.Context, opts gateway.CreateOptions) (models.Conversation, error) {
	conv, err := u.gateway.CreateConversation(ctx, opts)
	if err != nil {
		u.notifier.Notify(ctx, notify.Error("No se pudo crear la conversación", err, models.ID{}))
		return models.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}

	u.store.Upsert(conv)
	u.SetActive(conv.ID)

	if err := u.loadMessages(ctx, conv.ID); err != nil {
		u.notifier.Notify(ctx, notify.Error("No se pudieron cargar los mensajes", err, conv.ID))
	}
	return conv, nil
}

func (u *Updater) RenameConversation(ctx context.Context, id models.ID, title string) (models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Conversation{}, apierr.Validationf("title", "title is empty")
	}

	conv, err := u.gateway.RenameConversation(ctx, id, title)
	if err != nil {
		u.notifier.Notify(ctx, notify.Error("No se pudo renombrar la conversación", err, id))
		return models.Conversation{}, fmt.Errorf("failed to rename conversation: %w", err)
	}
	u.store.Upsert(conv)
	return conv, nil
}

// DeleteConversation removes the conversation on the server first and only
// then locally. A conversation the server no longer has counts as deleted.
func (u *Updater) DeleteConversation(ctx context.Context, id models.ID) error {
	err := u.gateway.DeleteConversation(ctx, id)
	if err != nil && !apierr.IsNotFound(err) {
		u.notifier.Notify(ctx, notify.Error("No se pudo eliminar la conversación", err, id))
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if err != nil {
		u.logger.Debug("conversation already deleted on server", zap.Stringer("conversation_id", id))
	}

	u.invalidate(id)
	u.store.Remove(id)

	u.mu.Lock()
	if u.active == id {
		u.active = models.ID{}
		if list := u.store.List(); len(list) > 0 {
			u.active = list[0].ID
		}
	}
	u.mu.Unlock()
	return nil
}

// OpenConversation activates a conversation and loads its messages when they
// are missing or stale.
func (u *Updater) OpenConversation(ctx context.Context, id models.ID) ([]models.Message, error) {
	if _, ok := u.store.Get(id); !ok {
		return nil, apierr.NotFoundf("conversation %s not in store", id)
	}
	u.SetActive(id)

	if !u.store.Loaded(id) || u.store.Stale(id) {
		if err := u.loadMessages(ctx, id); err != nil {
			u.notifier.Notify(ctx, notify.Error("No se pudieron cargar los mensajes", err, id))
			return nil, err
		}
	}
	return u.store.Messages(id), nil
}

// loadMessages installs the server transcript unless a send started or
// settled while it was being fetched. An overtaken snapshot is dropped and
// the conversation stays stale so the next open fetches again.
func (u *Updater) loadMessages(ctx context.Context, id models.ID) error {
	u.mu.Lock()
	version := u.changes[id]
	u.mu.Unlock()

	msgs, err := u.gateway.FetchMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.changes[id] != version {
		u.store.MarkStale(id)
		u.logger.Debug("discarding transcript overtaken by a send", zap.Stringer("conversation_id", id))
		return nil
	}
	return u.store.ReplaceMessages(id, msgs)
}

// Refresh reloads the conversation list from the server and prefetches the
// messages of the most recent conversations concurrently.
func (u *Updater) Refresh(ctx context.Context) error {
	convs, err := u.gateway.FetchConversations(ctx)
	if err != nil {
		u.notifier.Notify(ctx, notify.Error("No se pudieron cargar las conversaciones", err, models.ID{}))
		return fmt.Errorf("failed to fetch conversations: %w", err)
	}

	keep := make([]models.ID, 0, len(convs))
	for _, c := range convs {
		u.store.Upsert(c)
		keep = append(keep, c.ID)
	}
	for _, id := range u.store.Retain(keep) {
		u.invalidate(id)
	}

	list := u.store.List()
	u.mu.Lock()
	if _, ok := u.store.Get(u.active); !ok {
		u.active = models.ID{}
		if len(list) > 0 {
			u.active = list[0].ID
		}
	}
	u.mu.Unlock()

	if u.prefetch <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.prefetch)
	for i, c := range list {
		if i >= u.prefetch {
			break
		}
		id := c.ID
		if id.IsLocal() || (u.store.Loaded(id) && !u.store.Stale(id)) {
			continue
		}
		g.Go(func() error {
			return u.loadMessages(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		u.notifier.Notify(ctx, notify.Error("No se pudieron cargar los mensajes", err, models.ID{}))
		return err
	}
	return nil
}
