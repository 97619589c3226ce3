package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cipherchat/internal/models"
	"cipherchat/internal/repositories"
)

// HistoryLimit is the fixed history page size: the latest 50 messages of
// a conversation, no further pagination.
const HistoryLimit = 50

const storeTimeout = 5 * time.Second

// ErrPersistenceFailed wraps store errors on the send path. A message
// that failed to persist is never broadcast.
var ErrPersistenceFailed = errors.New("message persistence failed")

// TokenVerifier authenticates the ws handshake token and yields the
// connecting user's id.
type TokenVerifier interface {
	VerifyTokenUserID(token string) (string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, restrict to configured origins.
		return true
	},
}

// Handler is the realtime relay: it upgrades connections, tracks room
// membership through the hub, persists messages and fans them out.
type Handler struct {
	hub      *Hub
	messages repositories.MessageRepository
	presence repositories.PresenceRepository
	verifier TokenVerifier
}

func NewHandler(hub *Hub, messages repositories.MessageRepository, presence repositories.PresenceRepository, verifier TokenVerifier) *Handler {
	return &Handler{hub: hub, messages: messages, presence: presence, verifier: verifier}
}

// ServeWS handles the websocket handshake: token from the query string,
// upgrade, then one reader and one writer goroutine per connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := h.verifier.VerifyTokenUserID(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(h, userID, conn)
	h.touchPresence(userID)
	go c.writePump()
	go c.readPump()
}

// handleEvent dispatches one inbound event. A malformed payload or a
// failing store only affects this connection's conversation, never the
// process or other rooms.
func (h *Handler) handleEvent(c *Client, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("relay: recovered handling event for %s: %v", c.userID, rec)
		}
	}()

	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		log.Printf("relay: bad event from %s: %v", c.userID, err)
		return
	}

	h.touchPresence(c.userID)

	switch evt.Event {
	case EventJoinChat:
		h.handleJoin(c, evt.Data)
	case EventGetHistory:
		h.handleHistory(c, evt.Data)
	case EventSendMessage:
		h.handleSend(c, evt.Data)
	case EventTypingOn, EventTypingOff:
		h.handleTyping(c, evt.Event, evt.Data)
	default:
		log.Printf("relay: unknown event %q from %s", evt.Event, c.userID)
	}
}

func (h *Handler) handleJoin(c *Client, data json.RawMessage) {
	var p ConversationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("relay: bad join payload from %s: %v", c.userID, err)
		return
	}

	roomID := RoomID(p.SenderID, p.ReceiverID)
	previous := c.setRoom(roomID)
	if previous != "" && previous != roomID {
		h.hub.Leave(previous, c)
	}
	h.hub.Join(roomID, c)
}

// handleHistory replays the latest window of the conversation to the
// requesting connection only.
func (h *Handler) handleHistory(c *Client, data json.RawMessage) {
	var p ConversationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("relay: bad history payload from %s: %v", c.userID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	messages, err := h.messages.Query(ctx, p.SenderID, p.ReceiverID, HistoryLimit)
	if err != nil {
		log.Printf("relay: history query for %s: %v", c.userID, err)
		c.reply(EventSendError, ErrorPayload{Error: "failed to load message history"})
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	c.reply(EventHistory, messages)
}

// handleSend persists then broadcasts. The room's write lock makes the
// two steps atomic with respect to other senders in the same room, so
// subscribers observe messages in persistence order. On a store error
// nothing is broadcast and the sender gets an explicit failure signal.
func (h *Handler) handleSend(c *Client, data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("relay: bad send payload from %s: %v", c.userID, err)
		return
	}

	message := &models.Message{
		SenderID:              p.SenderID,
		ReceiverID:            p.ReceiverID,
		Content:               p.Content,
		ImageURL:              p.ImageURL,
		EncryptedAESKey:       p.EncryptedAESKey,
		SenderEncryptedAESKey: p.SenderEncryptedAESKey,
	}

	roomID := RoomID(p.SenderID, p.ReceiverID)
	unlock := h.hub.lockRoom(roomID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.messages.Append(ctx, message); err != nil {
		log.Printf("relay: %v: %v", ErrPersistenceFailed, err)
		c.reply(EventSendError, ErrorPayload{Error: "failed to send message"})
		return
	}

	h.hub.Broadcast(roomID, EventReceiveMessage, message)
}

// handleTyping forwards the ephemeral signal to the peer side of the
// room. Never persisted and the relay holds no timers; the client side
// owns the inactivity timeout.
func (h *Handler) handleTyping(c *Client, event string, data json.RawMessage) {
	var p ConversationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("relay: bad typing payload from %s: %v", c.userID, err)
		return
	}

	roomID := RoomID(p.SenderID, p.ReceiverID)
	h.hub.BroadcastExcept(roomID, event, TypingPayload{UserID: p.SenderID}, c)
}

func (h *Handler) touchPresence(userID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := h.presence.SetPresence(ctx, &models.Presence{
		UserID: userID,
		Status: string(models.StatusOnline),
	})
	if err != nil {
		log.Printf("relay: set presence for %s: %v", userID, err)
	}
}

func (h *Handler) clientClosed(c *Client) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.presence.DeletePresence(ctx, c.userID); err != nil {
		log.Printf("relay: clear presence for %s: %v", c.userID, err)
	}
}
