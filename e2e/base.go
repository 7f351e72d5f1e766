// Package e2e drives the fully wired relay over real sockets and the
// REST surface, asserting the externally visible contract.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"care-relay/api"
	"care-relay/domain"
	"care-relay/domain/event"
	"care-relay/moderation"
	"care-relay/observability"
	"care-relay/push"
	"care-relay/repositories"
	"care-relay/runtime"
	"care-relay/search"
	"care-relay/services"
	"care-relay/ws"
)

type RelaySuite struct {
	suite.Suite
	Config Config

	server   *httptest.Server
	registry *runtime.Registry
	messages *repositories.MessageRepository
	index    *search.MessageIndex
	db       *badger.DB
	cancel   context.CancelFunc
}

// SetupSuite loads the environment configuration before running tests
func (s *RelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	gin.SetMode(gin.TestMode)
}

// SetupTest wires a complete relay over a fresh store and serves it
// from an in-process HTTP server.
func (s *RelaySuite) SetupTest() {
	log := slog.Default()
	dir := s.T().TempDir()

	options := badger.DefaultOptions(filepath.Join(dir, "badger")).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(options)
	s.Require().NoError(err)
	s.db = db

	index, err := search.NewMessageIndex(filepath.Join(dir, "bluge"), log)
	s.Require().NoError(err)
	s.index = index

	messages, err := repositories.NewMessageRepository(db, log, 100)
	s.Require().NoError(err)
	s.messages = messages

	moderator, err := moderation.NewModerator([]string{"quack"}, '*')
	s.Require().NoError(err)

	registry := runtime.NewRegistry()
	s.registry = registry
	stats := observability.NewStats()
	conversations := repositories.NewConversationRepository(db, log)
	notifications := repositories.NewNotificationRepository(db, log)
	calls := repositories.NewVideoCallRepository(db, log)

	notifier := services.NewNotificationService(notifications, registry, push.NoopDispatcher{}, stats, log)
	chat := services.NewChatService(messages, conversations, registry, notifier, moderator, index, stats, log)
	callService := services.NewCallService(registry, calls, notifier, stats, log)

	hub := ws.NewHub(registry, chat, callService, 64, 64, log)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go hub.Run(ctx)

	handlers := api.NewHandlers(chat, callService, notifier, registry, stats, log)
	s.server = httptest.NewServer(api.NewRouter(handlers, hub.ServeWS))
}

func (s *RelaySuite) TearDownTest() {
	s.server.Close()
	s.cancel()
	s.Require().NoError(s.messages.Close())
	s.Require().NoError(s.index.Close())
	s.Require().NoError(s.db.Close())
}

// Banner prints a colorized scenario header in the test log.
func (s *RelaySuite) Banner(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

type frame struct {
	Type    event.Type      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// socketClient is one connected participant.
type socketClient struct {
	suite *RelaySuite
	conn  *websocket.Conn
}

// Dial opens a socket against the running relay.
func (s *RelaySuite) Dial() *socketClient {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	s.T().Cleanup(func() { conn.Close() })
	return &socketClient{suite: s, conn: conn}
}

// DialAs opens a socket, registers the given identity and waits until
// the relay has it in the presence registry.
func (s *RelaySuite) DialAs(role, id, name string) *socketClient {
	client := s.Dial()
	client.Send(event.TypeRegister, map[string]any{"userId": id, "userType": role, "name": name})

	identity, err := domain.NewIdentity(role, id)
	s.Require().NoError(err)
	deadline := time.Now().Add(s.Config.ReadTimeout)
	for {
		if _, ok := s.registry.Lookup(identity); ok {
			return client
		}
		if time.Now().After(deadline) {
			s.Require().FailNowf("registration timed out", "identity %s", identity.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *socketClient) Send(kind event.Type, payload any) {
	c.suite.Require().NoError(c.conn.WriteJSON(map[string]any{"type": kind, "payload": payload}))
}

func (c *socketClient) Close() {
	c.conn.Close()
}

// Expect reads frames until one of the wanted type arrives, skipping
// unrelated traffic, and decodes its payload into out when non-nil.
func (c *socketClient) Expect(kind event.Type, out any) frame {
	deadline := time.Now().Add(c.suite.Config.ReadTimeout)
	for {
		c.suite.Require().NoError(c.conn.SetReadDeadline(deadline))
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.suite.Require().FailNowf("socket read failed", "waiting for %s: %v", kind, err)
		}
		if f.Type != kind {
			c.suite.T().Logf("skipping frame %s while waiting for %s", f.Type, kind)
			continue
		}
		if out != nil {
			c.suite.Require().NoError(json.Unmarshal(f.Payload, out))
		}
		return f
	}
}

// ExpectSilence asserts no frame arrives within the grace window.
func (c *socketClient) ExpectSilence(grace time.Duration) {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(grace)))
	var f frame
	err := c.conn.ReadJSON(&f)
	if err == nil {
		c.suite.Require().FailNowf("unexpected frame", "got %s", f.Type)
	}
}

// GET performs a REST call and decodes the data envelope into out.
func (s *RelaySuite) GET(path string, out any) {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.decodeData(resp.Body, out)
}

// POST performs a REST call, asserts the status and decodes data.
func (s *RelaySuite) POST(path, body string, wantStatus int, out any) {
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(wantStatus, resp.StatusCode)
	if out != nil {
		s.decodeData(resp.Body, out)
	}
}

func (s *RelaySuite) decodeData(r io.Reader, out any) {
	if out == nil {
		io.Copy(io.Discard, r)
		return
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(r).Decode(&envelope))
	s.Require().NoError(json.Unmarshal(envelope.Data, out))
}
