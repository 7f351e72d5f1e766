package push

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"care-relay/contract"
	"care-relay/domain"
)

func TestDispatchPostsPayload(t *testing.T) {
	req := require.New(t)

	var got contract.Push
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal(http.MethodPost, r.Method)
		req.Equal("application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		req.NoError(err)
		req.NoError(json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second, slog.Default())
	err := d.Dispatch(context.Background(), contract.Push{
		To:    domain.Identity{Role: domain.RolePatient, ID: "p1"},
		Title: "New message",
		Body:  "hello",
		Data:  map[string]any{"conversationId": "d1_p1"},
	})
	req.NoError(err)
	req.Equal("p1", got.To.ID)
	req.Equal("New message", got.Title)
}

func TestDispatchRejectsErrorStatus(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second, slog.Default())
	err := d.Dispatch(context.Background(), contract.Push{Title: "x"})
	req.Error(err)
}

func TestNoopDispatcher(t *testing.T) {
	require.NoError(t, NoopDispatcher{}.Dispatch(context.Background(), contract.Push{}))
}
