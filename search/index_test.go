package search

import (
	"care-relay/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *MessageIndex {
	t.Helper()
	index, err := NewMessageIndex(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func indexed(conv, sender, content string) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conv,
		SenderID:       sender,
		SenderType:     domain.RolePatient,
		Type:           domain.MessageText,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestMessageIndex_Search_Finds_By_Content(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)

	m := indexed("a_b", "p1", "my knee hurts after running")
	req.NoError(index.Index(m))
	req.NoError(index.Index(indexed("a_b", "d1", "take some rest")))

	hits, err := index.Search(context.Background(), "a_b", "knee", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(m.ID.String(), hits[0].MessageID)
	req.Equal("my knee hurts after running", hits[0].Content)
	req.Equal("p1", hits[0].SenderID)
}

func TestMessageIndex_Search_Is_Scoped_To_Conversation(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)

	req.NoError(index.Index(indexed("a_b", "p1", "prescription refill")))
	req.NoError(index.Index(indexed("a_c", "p1", "prescription question")))

	hits, err := index.Search(context.Background(), "a_b", "prescription", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("a_b", hits[0].ConversationID)
}

func TestMessageIndex_Search_No_Match(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)

	req.NoError(index.Index(indexed("a_b", "p1", "hello")))

	hits, err := index.Search(context.Background(), "a_b", "absent", 10)
	req.NoError(err)
	req.Empty(hits)
}
