package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/models"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func conv(id int64, updated time.Duration) models.Conversation {
	return models.Conversation{
		ID:        models.RemoteID(id),
		Title:     "c",
		CreatedAt: base,
		UpdatedAt: base.Add(updated),
	}
}

func ids(convs []models.Conversation) []models.ID {
	out := make([]models.ID, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func TestListIsOrderedByLastUpdateDescending(t *testing.T) {
	s := New()
	assert.Empty(t, s.List())

	s.Upsert(conv(1, time.Minute))
	s.Upsert(conv(2, 3*time.Minute))
	s.Upsert(conv(3, 2*time.Minute))

	list := s.List()
	assert.Equal(t, []models.ID{models.RemoteID(2), models.RemoteID(3), models.RemoteID(1)}, ids(list))
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].UpdatedAt.After(list[i].UpdatedAt))
	}
}

func TestUpsertReplacesAndResorts(t *testing.T) {
	s := New()
	s.Upsert(conv(1, time.Minute))
	s.Upsert(conv(2, 2*time.Minute))
	require.NoError(t, s.AppendMessage(models.RemoteID(1), models.Message{ID: models.RemoteID(10), Text: "hola"}))

	c := conv(1, 5*time.Minute)
	c.Title = "renamed"
	s.Upsert(c)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, models.RemoteID(1), list[0].ID)
	assert.Equal(t, "renamed", list[0].Title)
	assert.Len(t, s.Messages(models.RemoteID(1)), 1)
}

func TestEqualTimestampsOrderDeterministically(t *testing.T) {
	s := New()
	s.Upsert(conv(1, 0))
	s.Upsert(conv(2, 0))
	assert.Equal(t, []models.ID{models.RemoteID(2), models.RemoteID(1)}, ids(s.List()))
}

func TestAppendPreservesInsertionOrder(t *testing.T) {
	s := New()
	id := models.RemoteID(1)
	s.Upsert(conv(1, 0))
	assert.Empty(t, s.Messages(id))
	assert.False(t, s.Loaded(id))

	texts := []string{"a", "b", "c"}
	for _, text := range texts {
		require.NoError(t, s.AppendMessage(id, models.Message{ID: models.LocalID(), Text: text}))
	}

	msgs := s.Messages(id)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, texts[i], m.Text)
		assert.Equal(t, id, m.ConversationID)
	}
}

func TestAppendToUnknownConversationFailsWithoutMutation(t *testing.T) {
	s := New()
	s.Upsert(conv(1, 0))
	before := s.List()

	err := s.AppendMessage(models.RemoteID(99), models.Message{Text: "x"})
	assert.True(t, apierr.IsNotFound(err))
	assert.Equal(t, before, s.List())
	assert.Empty(t, s.Messages(models.RemoteID(99)))
	assert.Equal(t, 1, s.Len())
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := New()
	s.Upsert(conv(1, 0))
	s.Upsert(conv(2, time.Second))

	s.Remove(models.RemoteID(1))
	once := s.List()
	s.Remove(models.RemoteID(1))
	assert.Equal(t, once, s.List())

	s.Remove(models.RemoteID(42))
	assert.Equal(t, once, s.List())
}

func TestReplaceMessagesKeepsUnconfirmedLocals(t *testing.T) {
	s := New()
	id := models.RemoteID(1)
	s.Upsert(conv(1, 0))

	failed := models.Message{ID: models.LocalID(), Sender: models.SenderUser, Text: "falló", Status: models.StatusFailed}
	bubble := models.Message{ID: models.LocalID(), Sender: models.SenderAssistant, Text: "error", Status: models.StatusFailed}
	sent := models.Message{ID: models.LocalID(), Sender: models.SenderUser, Text: "enviado", Status: models.StatusSent}
	pending := models.Message{ID: models.LocalID(), Sender: models.SenderUser, Text: "en vuelo", Status: models.StatusPending}
	for _, m := range []models.Message{failed, bubble, sent, pending} {
		require.NoError(t, s.AppendMessage(id, m))
	}
	s.MarkStale(id)
	assert.True(t, s.Stale(id))

	server := []models.Message{
		{ID: models.RemoteID(5), Text: "bienvenida", Status: models.StatusSent},
		{ID: models.RemoteID(6), Text: "enviado", Status: models.StatusSent},
	}
	require.NoError(t, s.ReplaceMessages(id, server))

	msgs := s.Messages(id)
	require.Len(t, msgs, 5)
	assert.Equal(t, models.RemoteID(5), msgs[0].ID)
	assert.Equal(t, models.RemoteID(6), msgs[1].ID)
	assert.Equal(t, failed.ID, msgs[2].ID)
	assert.Equal(t, bubble.ID, msgs[3].ID)
	assert.Equal(t, pending.ID, msgs[4].ID)
	assert.True(t, s.Loaded(id))
	assert.False(t, s.Stale(id))

	assert.True(t, apierr.IsNotFound(s.ReplaceMessages(models.RemoteID(7), nil)))
}

func TestMessagesReturnsIndependentSources(t *testing.T) {
	s := New()
	id := models.RemoteID(1)
	s.Upsert(conv(1, 0))
	require.NoError(t, s.AppendMessage(id, models.Message{ID: models.RemoteID(2), Sources: []string{"a.txt"}}))

	got := s.Messages(id)
	got[0].Sources[0] = "cambiado"
	got[0].Sources = append(got[0].Sources, "b.txt")

	assert.Equal(t, []string{"a.txt"}, s.Messages(id)[0].Sources)
}

func TestUpdateMessageAndTouch(t *testing.T) {
	s := New()
	id := models.RemoteID(1)
	s.Upsert(conv(1, 0))
	s.Upsert(conv(2, time.Minute))

	local := models.LocalID()
	require.NoError(t, s.AppendMessage(id, models.Message{ID: local, Status: models.StatusPending}))
	ok := s.UpdateMessage(id, local, func(m *models.Message) {
		m.ID = models.RemoteID(50)
		m.Status = models.StatusSent
	})
	require.True(t, ok)
	assert.Equal(t, models.RemoteID(50), s.Messages(id)[0].ID)
	assert.False(t, s.UpdateMessage(id, local, func(*models.Message) {}))

	assert.True(t, s.Touch(id, base.Add(time.Hour)))
	assert.Equal(t, id, s.List()[0].ID)

	// never backwards
	s.Touch(id, base)
	c, _ := s.Get(id)
	assert.Equal(t, base.Add(time.Hour), c.UpdatedAt)
	assert.False(t, s.Touch(models.RemoteID(9), base))
}

func TestRetainDropsUnlistedRemotes(t *testing.T) {
	s := New()
	s.Upsert(conv(1, 0))
	s.Upsert(conv(2, time.Second))
	local := models.Conversation{ID: models.LocalID(), UpdatedAt: base}
	s.Upsert(local)

	removed := s.Retain([]models.ID{models.RemoteID(2)})
	assert.Equal(t, []models.ID{models.RemoteID(1)}, removed)
	_, ok := s.Get(local.ID)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestConcurrentAppends(t *testing.T) {
	s := New()
	id := models.RemoteID(1)
	s.Upsert(conv(1, 0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendMessage(id, models.Message{ID: models.LocalID()})
			s.Touch(id, base.Add(time.Duration(i)*time.Second))
			_ = s.List()
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Messages(id), 50)
}
