package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func seedUser(t *testing.T, database *DB, username string) *models.User {
	t.Helper()
	user, err := database.CreateUser(username, "hashed-password", "")
	require.NoError(t, err)
	return user
}

func seedConversation(t *testing.T, database *DB, convType string, participants ...int64) *models.Conversation {
	t.Helper()
	conv, err := database.CreateConversation("", convType, participants)
	require.NoError(t, err)
	return conv
}

func TestCreateAndGetUser(t *testing.T) {
	database := newTestDB(t)

	user := seedUser(t, database, "alice")
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.StatusOffline, user.Status)
	assert.Nil(t, user.LastSeen)

	byName, err := database.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = database.GetUserByID(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateUsernameRejected(t *testing.T) {
	database := newTestDB(t)

	seedUser(t, database, "alice")
	_, err := database.CreateUser("alice", "pw", "")
	require.Error(t, err)
	assert.ErrorContains(t, err, `failed to create user "alice"`)
}

func TestPresenceStamps(t *testing.T) {
	database := newTestDB(t)
	user := seedUser(t, database, "alice")

	require.NoError(t, database.SetUserOnline(user.ID, "conn-1"))
	got, err := database.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, got.Status)
	assert.Equal(t, "conn-1", got.ConnectionID)

	lastSeen := time.Now()
	require.NoError(t, database.SetUserOffline(user.ID, lastSeen))
	got, err = database.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, got.Status)
	assert.Empty(t, got.ConnectionID)
	require.NotNil(t, got.LastSeen)
	assert.WithinDuration(t, lastSeen, *got.LastSeen, time.Second)
}

func TestCreateConversationRequiresTwoParticipants(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")

	_, err := database.CreateConversation("", models.ConversationPrivate, []int64{alice.ID})
	assert.Error(t, err)
}

func TestConversationParticipants(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	carol := seedUser(t, database, "carol")

	conv := seedConversation(t, database, models.ConversationGroup, alice.ID, bob.ID, carol.ID)

	ids, err := database.GetConversationParticipantIDs(conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID, carol.ID}, ids)

	ok, err := database.IsParticipant(conv.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	outsider := seedUser(t, database, "mallory")
	ok, err = database.IsParticipant(conv.ID, outsider.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistingPrivateConversationDedupe(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	carol := seedUser(t, database, "carol")

	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	found, err := database.GetExistingPrivateConversation(alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conv.ID, found.ID)

	// A three-party group containing both users must not match.
	seedConversation(t, database, models.ConversationGroup, alice.ID, bob.ID, carol.ID)
	found, err = database.GetExistingPrivateConversation(alice.ID, carol.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFilterParticipating(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	carol := seedUser(t, database, "carol")

	mine := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)
	other := seedConversation(t, database, models.ConversationPrivate, bob.ID, carol.ID)

	got, err := database.FilterParticipating(alice.ID, []int64{mine.ID, other.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []int64{mine.ID}, got)
}

func TestMessageLifecycleColumns(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	msg, err := database.CreateMessage(&models.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageText, msg.Type)
	assert.Equal(t, models.MessageSent, msg.Status)
	assert.Equal(t, "alice", msg.SenderName)
	assert.False(t, msg.Edited)
	assert.False(t, msg.Deleted)

	editedAt := time.Now()
	require.NoError(t, database.UpdateMessageContent(msg.ID, "hello", editedAt))
	got, err := database.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.True(t, got.Edited)
	require.NotNil(t, got.EditedAt)

	require.NoError(t, database.MarkMessageDeleted(msg.ID, time.Now()))
	got, err = database.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, models.Tombstone, got.Content)
	require.NotNil(t, got.DeletedAt)
}

func TestMarkMessagesReadSetSemantics(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	msg, err := database.CreateMessage(&models.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "hi",
	})
	require.NoError(t, err)

	ids := []int64{msg.ID}
	require.NoError(t, database.MarkMessagesRead(conv.ID, bob.ID, ids, time.Now()))
	require.NoError(t, database.MarkMessagesRead(conv.ID, bob.ID, ids, time.Now()))

	reads, err := database.GetMessageReads(msg.ID)
	require.NoError(t, err)
	require.Len(t, reads, 1)
	assert.Equal(t, bob.ID, reads[0].UserID)

	got, err := database.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageRead, got.Status)
}

func TestMarkMessagesReadIgnoresOwnMessages(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	msg, err := database.CreateMessage(&models.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "hi",
	})
	require.NoError(t, err)

	require.NoError(t, database.MarkMessagesRead(conv.ID, alice.ID, []int64{msg.ID}, time.Now()))

	reads, err := database.GetMessageReads(msg.ID)
	require.NoError(t, err)
	assert.Empty(t, reads)

	got, err := database.GetMessage(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageSent, got.Status)
}

func TestGetConversationMessagesPagination(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	for i := 0; i < 5; i++ {
		_, err := database.CreateMessage(&models.Message{
			ConversationID: conv.ID,
			SenderID:       alice.ID,
			Content:        "msg",
			CreatedAt:      time.Now().Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	deleted, err := database.CreateMessage(&models.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "going away",
	})
	require.NoError(t, err)
	require.NoError(t, database.MarkMessageDeleted(deleted.ID, time.Now()))

	messages, total, err := database.GetConversationMessages(conv.ID, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, messages, 3)
	// Page is oldest-first.
	assert.True(t, !messages[0].CreatedAt.After(messages[1].CreatedAt))
	for _, m := range messages {
		assert.False(t, m.Deleted)
	}
}

func TestSetLastMessage(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	msg, err := database.CreateMessage(&models.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "hi",
	})
	require.NoError(t, err)
	require.NoError(t, database.SetLastMessage(conv.ID, msg.ID, msg.CreatedAt))

	got, err := database.GetConversation(conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, msg.ID, *got.LastMessageID)
}

func TestDeleteConversationCascades(t *testing.T) {
	database := newTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	conv := seedConversation(t, database, models.ConversationPrivate, alice.ID, bob.ID)

	msg, err := database.CreateMessage(&models.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "hi",
	})
	require.NoError(t, err)
	require.NoError(t, database.MarkMessagesRead(conv.ID, bob.ID, []int64{msg.ID}, time.Now()))

	require.NoError(t, database.DeleteConversation(conv.ID))

	_, err = database.GetConversation(conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = database.GetMessage(msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchUsersRanking(t *testing.T) {
	database := newTestDB(t)
	seedUser(t, database, "anna")
	seedUser(t, database, "annabel")
	seedUser(t, database, "joanna")

	users, err := database.SearchUsers("anna")
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "anna", users[0].Username)
}
