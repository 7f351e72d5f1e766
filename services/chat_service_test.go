package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/errors"
	"care-relay/mocks"
	"care-relay/moderation"
	"care-relay/observability"
	"care-relay/repositories"
	"care-relay/runtime"
	"care-relay/search"
)

type chatFixture struct {
	chat     *ChatService
	registry *runtime.Registry
	convs    *repositories.ConversationRepository
	notifs   *repositories.NotificationRepository
	stats    *observability.Stats
}

func newChatFixture(t *testing.T, words []string) chatFixture {
	t.Helper()
	db := openTestDB(t)
	log := testLogger()

	messages, err := repositories.NewMessageRepository(db, log, 100)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, messages.Close()) })

	index, err := search.NewMessageIndex(filepath.Join(t.TempDir(), "index"), log)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, index.Close()) })

	moderator, err := moderation.NewModerator(words, '*')
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockIPushDispatcher(ctrl)
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	registry := runtime.NewRegistry()
	stats := observability.NewStats()
	convs := repositories.NewConversationRepository(db, log)
	notifs := repositories.NewNotificationRepository(db, log)
	notifier := NewNotificationService(notifs, registry, dispatcher, stats, log)
	chat := NewChatService(messages, convs, registry, notifier, moderator, index, stats, log)

	return chatFixture{chat: chat, registry: registry, convs: convs, notifs: notifs, stats: stats}
}

func textCommand(senderRole, senderID, receiverRole, receiverID, content string) SendMessageCommand {
	return SendMessageCommand{
		SenderID:     senderID,
		SenderType:   senderRole,
		ReceiverID:   receiverID,
		ReceiverType: receiverRole,
		MessageType:  "text",
		Content:      content,
	}
}

func TestSendMessagePersistsAndUpdatesConversation(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	message, err := f.chat.SendMessage(context.Background(), textCommand("patient", "p1", "doctor", "d1", "hello doctor"))
	req.NoError(err)
	req.Equal("d1_p1", message.ConversationID)
	req.Equal("hello doctor", message.Content)
	req.NotEmpty(message.ID)
	req.False(message.CreatedAt.IsZero())

	conv, err := f.convs.Get("d1_p1")
	req.NoError(err)
	req.Equal("hello doctor", conv.LastMessage)
	req.Equal(1, conv.Unread(domain.RoleDoctor))
	req.Equal(0, conv.Unread(domain.RolePatient))
}

func TestSendMessageRejectsForgedConversationID(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	cmd := textCommand("patient", "p1", "doctor", "d1", "hi")
	cmd.ConversationID = "d9_p9"

	_, err := f.chat.SendMessage(context.Background(), cmd)
	req.Error(err)
	req.True(errors.IsValidation(err))
}

func TestSendMessageRejectsSameRolePair(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	_, err := f.chat.SendMessage(context.Background(), textCommand("patient", "p1", "patient", "p2", "hi"))
	req.Error(err)
	req.True(errors.IsValidation(err))
}

func TestSendMessageRejectsMissingFields(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	cmd := textCommand("patient", "p1", "doctor", "d1", "")
	_, err := f.chat.SendMessage(context.Background(), cmd)
	req.Error(err)
	req.True(errors.IsValidation(err))

	cmd = textCommand("patient", "bad id!", "doctor", "d1", "hi")
	_, err = f.chat.SendMessage(context.Background(), cmd)
	req.Error(err)
	req.True(errors.IsValidation(err))
}

func TestSendMessageMasksForbiddenWords(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, []string{"quack"})

	message, err := f.chat.SendMessage(context.Background(), textCommand("patient", "p1", "doctor", "d1", "you quack"))
	req.NoError(err)
	req.Equal("you *****", message.Content)
}

func TestSendMessageTagsLanguage(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	message, err := f.chat.SendMessage(context.Background(), textCommand("patient", "p1", "doctor", "d1",
		"bonjour docteur, je voudrais prendre un rendez-vous pour la semaine prochaine"))
	req.NoError(err)
	req.Equal("fr", message.Language)
}

func TestDeliverForwardsToOnlineReceiver(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()

	doctor := domain.Identity{Role: domain.RoleDoctor, ID: "d1"}
	sink := &recordingSink{}
	f.registry.Register(doctor, sink)

	message, err := f.chat.SendMessage(ctx, textCommand("patient", "p1", "doctor", "d1", "hello"))
	req.NoError(err)
	f.chat.Deliver(ctx, message)

	events := sink.received()
	req.Len(events, 1)
	req.Equal(event.TypeChatNewMessage, events[0].Type)
	delivered, ok := events[0].Payload.(domain.Message)
	req.True(ok)
	req.Equal(message.ID, delivered.ID)
	req.Equal("hello", delivered.Content)

	// No fallback row when the live path worked.
	rows, err := f.notifs.ListForUser(doctor, 10)
	req.NoError(err)
	req.Empty(rows)
}

func TestDeliverFallsBackToNotificationWhenOffline(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()

	message, err := f.chat.SendMessage(ctx, textCommand("patient", "p1", "doctor", "d1", "are you there?"))
	req.NoError(err)
	f.chat.Deliver(ctx, message)

	doctor := domain.Identity{Role: domain.RoleDoctor, ID: "d1"}
	rows, err := f.notifs.ListForUser(doctor, 10)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal(domain.NotificationChat, rows[0].Type)
	req.Equal("are you there?", rows[0].Message)
	req.Equal("d1_p1", rows[0].Data["conversationId"])
}

func TestDeliverToRefusingSinkCountsFailureWithoutNotification(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()

	doctor := domain.Identity{Role: domain.RoleDoctor, ID: "d1"}
	f.registry.Register(doctor, &recordingSink{fail: errors.ErrSinkBackpressure})

	message, err := f.chat.SendMessage(ctx, textCommand("patient", "p1", "doctor", "d1", "hello"))
	req.NoError(err)
	f.chat.Deliver(ctx, message)

	// The receiver is online; the refused forward is a delivery
	// failure, never an offline notification.
	rows, err := f.notifs.ListForUser(doctor, 10)
	req.NoError(err)
	req.Empty(rows)
	req.EqualValues(1, f.stats.Snapshot(1).DeliveryFailures)
}

func TestMarkReadResetsCounterAndStoredMessages(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()

	for _, body := range []string{"one", "two"} {
		_, err := f.chat.SendMessage(ctx, textCommand("patient", "p1", "doctor", "d1", body))
		req.NoError(err)
	}

	doctor := domain.Identity{Role: domain.RoleDoctor, ID: "d1"}
	count, err := f.chat.MarkRead("d1_p1", doctor)
	req.NoError(err)
	req.Equal(2, count)

	conv, err := f.convs.Get("d1_p1")
	req.NoError(err)
	req.Equal(0, conv.Unread(domain.RoleDoctor))

	// Idempotent on repeat.
	count, err = f.chat.MarkRead("d1_p1", doctor)
	req.NoError(err)
	req.Equal(0, count)
}

func TestMarkReadUnknownConversationIsNoop(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	count, err := f.chat.MarkRead("a_b", domain.Identity{Role: domain.RoleDoctor, ID: "b"})
	req.NoError(err)
	req.Zero(count)
}

func TestTypingReachesOtherParticipantOnly(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, textCommand("patient", "p1", "doctor", "d1", "hi"))
	req.NoError(err)

	doctorSink := &recordingSink{}
	f.registry.Register(domain.Identity{Role: domain.RoleDoctor, ID: "d1"}, doctorSink)

	patient := domain.Identity{Role: domain.RolePatient, ID: "p1"}
	f.chat.Typing(ctx, "d1_p1", patient, true)

	events := doctorSink.received()
	req.Len(events, 1)
	req.Equal(event.TypeChatUserTyping, events[0].Type)
	payload, ok := events[0].Payload.(map[string]any)
	req.True(ok)
	req.Equal("p1", payload["userId"])
	req.Equal(true, payload["isTyping"])

	// Unknown conversation and offline peer both drop silently.
	f.chat.Typing(ctx, "x_y", patient, true)
	f.registry.UnregisterSink(doctorSink)
	f.chat.Typing(ctx, "d1_p1", patient, false)
	req.Len(doctorSink.received(), 1)
}

func TestCreateOrGetIsIdempotentAcrossSides(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)

	first, created, err := f.chat.CreateOrGet("p1", "d1", "Pat", "Dr. Chen")
	req.NoError(err)
	req.True(created)
	req.Equal("d1_p1", first.ID)

	second, created, err := f.chat.CreateOrGet("p1", "d1", "", "")
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
	req.Equal("Dr. Chen", second.DoctorName)
}

func TestSearchMessagesScopedToConversation(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, nil)
	ctx := context.Background()

	_, err := f.chat.SendMessage(ctx, textCommand("patient", "p1", "doctor", "d1", "my prescription ran out"))
	req.NoError(err)
	_, err = f.chat.SendMessage(ctx, textCommand("patient", "p2", "doctor", "d1", "booking a prescription review"))
	req.NoError(err)

	hits, err := f.chat.SearchMessages(ctx, "d1_p1", "prescription", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("d1_p1", hits[0].ConversationID)
}
