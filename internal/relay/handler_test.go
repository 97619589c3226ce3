package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/models"
)

// memMessageRepo is an in-memory MessageRepository for relay tests.
type memMessageRepo struct {
	mu         sync.Mutex
	messages   []*models.Message
	clock      time.Time
	failAppend bool
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{clock: time.Now().Add(-time.Hour)}
}

func (r *memMessageRepo) Append(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return errors.New("store unavailable")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	r.clock = r.clock.Add(time.Millisecond)
	message.CreatedAt = r.clock
	stored := *message
	r.messages = append(r.messages, &stored)
	return nil
}

func (r *memMessageRepo) Query(_ context.Context, userA, userB string, limit int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.Message
	for _, m := range r.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (r *memMessageRepo) MarkRead(_ context.Context, messageID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == messageID {
			m.ReadAt = &at
			return nil
		}
	}
	return errors.New("not found")
}

func (r *memMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// tokenIsUserID treats the handshake token as the user id itself.
type tokenIsUserID struct{}

func (tokenIsUserID) VerifyTokenUserID(token string) (string, error) {
	if token == "" {
		return "", errors.New("missing token")
	}
	return token, nil
}

func startRelay(t *testing.T, repo *memMessageRepo) *httptest.Server {
	t.Helper()
	handler := NewHandler(NewHub(), repo, nil, tokenIsUserID{})
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	return server
}

func dialRelay(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := MarshalEvent(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	return evt
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no event on this connection")
}

func join(t *testing.T, conn *websocket.Conn, selfID, peerID string) {
	t.Helper()
	sendEvent(t, conn, EventJoinChat, ConversationPayload{SenderID: selfID, ReceiverID: peerID})
	// join has no response payload; give the server a moment to register
	time.Sleep(50 * time.Millisecond)
}

func TestSendPersistsAndEchoesToBothSides(t *testing.T) {
	repo := newMemMessageRepo()
	server := startRelay(t, repo)

	alice := dialRelay(t, server, "alice")
	bob := dialRelay(t, server, "bob")
	join(t, alice, "alice", "bob")
	join(t, bob, "bob", "alice")

	wrap := "d2lyZQ=="
	sendEvent(t, alice, EventSendMessage, SendMessagePayload{
		SenderID:              "alice",
		ReceiverID:            "bob",
		Content:               "ciphertext-blob",
		EncryptedAESKey:       &wrap,
		SenderEncryptedAESKey: &wrap,
	})

	for _, conn := range []*websocket.Conn{alice, bob} {
		evt := readEvent(t, conn)
		require.Equal(t, EventReceiveMessage, evt.Event)

		var msg models.Message
		require.NoError(t, json.Unmarshal(evt.Data, &msg))
		assert.NotEmpty(t, msg.ID, "broadcast carries the server-assigned id")
		assert.False(t, msg.CreatedAt.IsZero(), "broadcast carries the server timestamp")
		assert.Equal(t, "ciphertext-blob", msg.Content)
		require.NotNil(t, msg.EncryptedAESKey)
		require.NotNil(t, msg.SenderEncryptedAESKey)
	}

	assert.Equal(t, 1, repo.count())
}

func TestHistoryReturnsLatestWindowAscending(t *testing.T) {
	repo := newMemMessageRepo()
	// 60 messages, alternating direction: only the newest 50 come back.
	for i := 0; i < 60; i++ {
		msg := &models.Message{SenderID: "alice", ReceiverID: "bob", Content: fmt.Sprintf("m%d", i)}
		if i%2 == 1 {
			msg.SenderID, msg.ReceiverID = "bob", "alice"
		}
		require.NoError(t, repo.Append(context.Background(), msg))
	}
	// Unrelated conversation must not leak in.
	require.NoError(t, repo.Append(context.Background(), &models.Message{SenderID: "carol", ReceiverID: "dave", Content: "other"}))

	server := startRelay(t, repo)
	alice := dialRelay(t, server, "alice")
	join(t, alice, "alice", "bob")

	sendEvent(t, alice, EventGetHistory, ConversationPayload{SenderID: "alice", ReceiverID: "bob"})
	evt := readEvent(t, alice)
	require.Equal(t, EventHistory, evt.Event)

	var history []*models.Message
	require.NoError(t, json.Unmarshal(evt.Data, &history))
	require.Len(t, history, HistoryLimit)
	assert.Equal(t, "m10", history[0].Content)
	assert.Equal(t, "m59", history[len(history)-1].Content)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt), "history must ascend by createdAt")
	}
}

func TestHistoryOnEmptyConversation(t *testing.T) {
	repo := newMemMessageRepo()
	server := startRelay(t, repo)

	alice := dialRelay(t, server, "alice")
	join(t, alice, "alice", "bob")

	sendEvent(t, alice, EventGetHistory, ConversationPayload{SenderID: "alice", ReceiverID: "bob"})
	evt := readEvent(t, alice)
	require.Equal(t, EventHistory, evt.Event)

	var history []*models.Message
	require.NoError(t, json.Unmarshal(evt.Data, &history))
	assert.Empty(t, history)
}

func TestPersistenceFailureAbortsBroadcast(t *testing.T) {
	repo := newMemMessageRepo()
	repo.failAppend = true
	server := startRelay(t, repo)

	alice := dialRelay(t, server, "alice")
	bob := dialRelay(t, server, "bob")
	join(t, alice, "alice", "bob")
	join(t, bob, "bob", "alice")

	sendEvent(t, alice, EventSendMessage, SendMessagePayload{SenderID: "alice", ReceiverID: "bob", Content: "doomed"})

	evt := readEvent(t, alice)
	require.Equal(t, EventSendError, evt.Event, "sender gets an explicit failed-send signal")

	expectSilence(t, bob)
	assert.Equal(t, 0, repo.count())
}

func TestTypingForwardedToPeerOnly(t *testing.T) {
	repo := newMemMessageRepo()
	server := startRelay(t, repo)

	alice := dialRelay(t, server, "alice")
	bob := dialRelay(t, server, "bob")
	join(t, alice, "alice", "bob")
	join(t, bob, "bob", "alice")

	sendEvent(t, alice, EventTypingOn, ConversationPayload{SenderID: "alice", ReceiverID: "bob"})

	evt := readEvent(t, bob)
	require.Equal(t, EventTypingOn, evt.Event)
	var typing TypingPayload
	require.NoError(t, json.Unmarshal(evt.Data, &typing))
	assert.Equal(t, "alice", typing.UserID)

	expectSilence(t, alice)
	assert.Equal(t, 0, repo.count(), "typing events are never persisted")
}

func TestDisconnectedPeerCatchesUpViaHistory(t *testing.T) {
	repo := newMemMessageRepo()
	server := startRelay(t, repo)

	alice := dialRelay(t, server, "alice")
	bob := dialRelay(t, server, "bob")
	join(t, alice, "alice", "bob")
	join(t, bob, "bob", "alice")

	// Bob drops mid-session; Alice's send still persists.
	bob.Close()
	time.Sleep(50 * time.Millisecond)

	sendEvent(t, alice, EventSendMessage, SendMessagePayload{SenderID: "alice", ReceiverID: "bob", Content: "while you were away"})
	evt := readEvent(t, alice)
	require.Equal(t, EventReceiveMessage, evt.Event)
	require.Equal(t, 1, repo.count())

	// Bob reconnects and replays history.
	bob2 := dialRelay(t, server, "bob")
	join(t, bob2, "bob", "alice")
	sendEvent(t, bob2, EventGetHistory, ConversationPayload{SenderID: "bob", ReceiverID: "alice"})

	evt = readEvent(t, bob2)
	require.Equal(t, EventHistory, evt.Event)
	var history []*models.Message
	require.NoError(t, json.Unmarshal(evt.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "while you were away", history[0].Content)
}

func TestJoinSwitchesConversation(t *testing.T) {
	repo := newMemMessageRepo()
	server := startRelay(t, repo)

	alice := dialRelay(t, server, "alice")
	bob := dialRelay(t, server, "bob")
	join(t, alice, "alice", "bob")
	join(t, bob, "bob", "alice")

	// Alice switches to a conversation with carol; the old membership is
	// left behind.
	join(t, alice, "alice", "carol")

	sendEvent(t, bob, EventSendMessage, SendMessagePayload{SenderID: "bob", ReceiverID: "alice", Content: "hello?"})

	evt := readEvent(t, bob)
	require.Equal(t, EventReceiveMessage, evt.Event)
	expectSilence(t, alice)
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	repo := newMemMessageRepo()
	server := startRelay(t, repo)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
