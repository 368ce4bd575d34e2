package chat_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

func sequentialIDs() chatservice.IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("chat-%d", n)
	}
}

func TestNewStoreSeedsDefaultSession(t *testing.T) {
	store := chatservice.NewStore()

	require.Equal(t, 1, store.Len())
	active := store.ActiveID()
	require.NotEmpty(t, active)

	title, err := store.Title(active)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultTitle, title)

	messages, err := store.Messages(active)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestCreateSessionBecomesActive(t *testing.T) {
	store := chatservice.NewStore(chatservice.WithIDFunc(sequentialIDs()))

	id := store.CreateSession()

	assert.Equal(t, "chat-2", id)
	assert.Equal(t, id, store.ActiveID())
	assert.Equal(t, 2, store.Len())
}

func TestCreateSessionSkipsCollidingIDs(t *testing.T) {
	ids := []string{"same", "same", "other"}
	store := chatservice.NewStore(chatservice.WithIDFunc(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	id := store.CreateSession()
	assert.Equal(t, "other", id)
	assert.Equal(t, 2, store.Len())
}

func TestStoreTimestampsUseClock(t *testing.T) {
	ticks := []time.Time{
		time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 9, 0, 5, 0, time.UTC),
	}
	store := chatservice.NewStore(chatservice.WithClock(func() time.Time {
		now := ticks[0]
		ticks = ticks[1:]
		return now
	}))
	id := store.ActiveID()

	msg, err := store.AppendMessage(id, chat.RoleUser, "hi")
	require.NoError(t, err)

	session, err := store.Session(id)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), session.CreatedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 5, 0, time.UTC), msg.CreatedAt)
	assert.Equal(t, msg, session.Messages[0])
}

func TestSelectSession(t *testing.T) {
	store := chatservice.NewStore(chatservice.WithIDFunc(sequentialIDs()))
	store.CreateSession()

	require.NoError(t, store.SelectSession("chat-1"))
	assert.Equal(t, "chat-1", store.ActiveID())
}

func TestSelectSessionUnknownID(t *testing.T) {
	store := chatservice.NewStore()
	before := store.ActiveID()

	err := store.SelectSession("missing")
	require.ErrorIs(t, err, chatservice.ErrInvalidReference)
	assert.Equal(t, before, store.ActiveID())
}

func TestDeleteLastSessionRefused(t *testing.T) {
	store := chatservice.NewStore()
	active := store.ActiveID()

	err := store.DeleteSession(active)
	require.ErrorIs(t, err, chatservice.ErrCannotDeleteLastSession)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, active, store.ActiveID())
}

func TestDeleteActiveSessionReassignsOldest(t *testing.T) {
	store := chatservice.NewStore(chatservice.WithIDFunc(sequentialIDs()))
	store.CreateSession()
	store.CreateSession()
	require.Equal(t, "chat-3", store.ActiveID())

	require.NoError(t, store.DeleteSession("chat-3"))
	assert.Equal(t, "chat-1", store.ActiveID())

	require.NoError(t, store.DeleteSession("chat-1"))
	assert.Equal(t, "chat-2", store.ActiveID())
}

func TestDeleteInactiveSessionKeepsActive(t *testing.T) {
	store := chatservice.NewStore(chatservice.WithIDFunc(sequentialIDs()))
	store.CreateSession()

	require.NoError(t, store.DeleteSession("chat-1"))
	assert.Equal(t, "chat-2", store.ActiveID())
	assert.Equal(t, 1, store.Len())
}

func TestDeleteUnknownSession(t *testing.T) {
	store := chatservice.NewStore()
	store.CreateSession()

	err := store.DeleteSession("missing")
	require.ErrorIs(t, err, chatservice.ErrInvalidReference)
	assert.Equal(t, 2, store.Len())
}

func TestListKeepsCreationOrder(t *testing.T) {
	store := chatservice.NewStore(chatservice.WithIDFunc(sequentialIDs()))
	store.CreateSession()
	store.CreateSession()
	require.NoError(t, store.DeleteSession("chat-2"))
	store.CreateSession()

	var ids []string
	for _, session := range store.List() {
		ids = append(ids, session.ID)
	}
	assert.Equal(t, []string{"chat-1", "chat-3", "chat-4"}, ids)
}

func TestAppendMessageAcceptsEmptyContent(t *testing.T) {
	store := chatservice.NewStore()
	id := store.ActiveID()

	_, err := store.AppendMessage(id, chat.RoleUser, "")
	require.NoError(t, err)
	_, err = store.AppendMessage(id, chat.RoleAssistant, "reply")
	require.NoError(t, err)

	messages, err := store.Messages(id)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, "", messages[0].Content)
	assert.Equal(t, "reply", messages[1].Content)
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	store := chatservice.NewStore()
	id := store.ActiveID()

	_, err := store.AppendMessage(id, chat.Role("system"), "be terse")
	require.ErrorIs(t, err, chatservice.ErrInvalidRole)

	messages, err := store.Messages(id)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMessagesReturnsCopy(t *testing.T) {
	store := chatservice.NewStore()
	id := store.ActiveID()
	_, err := store.AppendMessage(id, chat.RoleUser, "original")
	require.NoError(t, err)

	messages, err := store.Messages(id)
	require.NoError(t, err)
	messages[0].Content = "mutated"

	again, err := store.Messages(id)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestAccessorsUnknownID(t *testing.T) {
	store := chatservice.NewStore()

	_, err := store.Title("missing")
	assert.ErrorIs(t, err, chatservice.ErrInvalidReference)
	assert.ErrorIs(t, store.SetTitle("missing", "x"), chatservice.ErrInvalidReference)
	_, err = store.Messages("missing")
	assert.ErrorIs(t, err, chatservice.ErrInvalidReference)
	_, err = store.AppendMessage("missing", chat.RoleUser, "x")
	assert.ErrorIs(t, err, chatservice.ErrInvalidReference)
	_, err = store.Session("missing")
	assert.ErrorIs(t, err, chatservice.ErrInvalidReference)
}

func TestRandomCreateDeleteKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	store := chatservice.NewStore()

	for step := 0; step < 500; step++ {
		if rng.Intn(2) == 0 {
			store.CreateSession()
		} else {
			sessions := store.List()
			target := sessions[rng.Intn(len(sessions))].ID
			activeBefore := store.ActiveID()

			err := store.DeleteSession(target)
			switch {
			case len(sessions) == 1:
				require.ErrorIs(t, err, chatservice.ErrCannotDeleteLastSession)
			case target == activeBefore:
				require.NoError(t, err)
				assert.NotEqual(t, target, store.ActiveID())
			default:
				require.NoError(t, err)
				assert.Equal(t, activeBefore, store.ActiveID())
			}
		}

		require.Positive(t, store.Len(), "step %d", step)
		_, err := store.Session(store.ActiveID())
		require.NoError(t, err, "step %d: active id must resolve", step)
	}
}
