package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessage_Preview(t *testing.T) {
	req := require.New(t)

	long := Message{Type: MessageText, Content: strings.Repeat("x", 200)}
	preview := long.Preview(80)
	req.Len([]rune(preview), 83)
	req.True(strings.HasSuffix(preview, "..."))

	short := Message{Type: MessageText, Content: "bonjour"}
	req.Equal("bonjour", short.Preview(80))

	voice := Message{Type: MessageVoice, Content: "caption ignored"}
	req.Equal("[voice message]", voice.Preview(80))

	image := Message{Type: MessageImage}
	req.Equal("[image]", image.Preview(80))
}

func TestMessage_Endpoints(t *testing.T) {
	req := require.New(t)
	m := Message{
		SenderID: "p1", SenderType: RolePatient,
		ReceiverID: "d1", ReceiverType: RoleDoctor,
	}
	req.Equal(Identity{Role: RolePatient, ID: "p1"}, m.Sender())
	req.Equal(Identity{Role: RoleDoctor, ID: "d1"}, m.Receiver())
}
