// Package chat is the client side of the relay protocol: one websocket
// session per connection, the typing debounce, and the key directory
// client the crypto engine rides on.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"cipherchat/internal/crypto"
	"cipherchat/internal/models"
	"cipherchat/internal/relay"
)

// Incoming is one decoded server-to-client event.
type Incoming struct {
	Event   string
	Message *models.Message
	History []*models.Message
	Typing  *relay.TypingPayload
	Err     *relay.ErrorPayload
}

// Session is one live client connection to the relay. It is joined to at
// most one conversation at a time; Join switches conversations.
type Session struct {
	conn   *websocket.Conn
	selfID string
	peerID string
	engine *crypto.Engine
	Typing *TypingNotifier
}

// Dial connects and authenticates a relay session. engine may be nil for
// a plaintext-only session (the assistant channel).
func Dial(ctx context.Context, baseURL, token, selfID string, engine *crypto.Engine) (*Session, error) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1)
	u := fmt.Sprintf("%s/ws?token=%s", wsURL, url.QueryEscape(token))

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s := &Session{conn: conn, selfID: selfID, engine: engine}
	s.Typing = NewTypingNotifier(func(on bool) {
		_ = s.SetTyping(on)
	})
	return s, nil
}

func (s *Session) emit(event string, payload any) error {
	raw, err := relay.MarshalEvent(event, payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Join subscribes this session to the conversation with peerID.
func (s *Session) Join(peerID string) error {
	s.peerID = peerID
	return s.emit(relay.EventJoinChat, relay.ConversationPayload{
		SenderID:   s.selfID,
		ReceiverID: peerID,
	})
}

// RequestHistory asks for the latest window of the current conversation.
// The reply arrives through Next as a History event.
func (s *Session) RequestHistory() error {
	return s.emit(relay.EventGetHistory, relay.ConversationPayload{
		SenderID:   s.selfID,
		ReceiverID: s.peerID,
	})
}

// Send encrypts and sends one message to the current peer. The local
// echo arrives through Next with the server-assigned id; nothing is
// rendered optimistically.
func (s *Session) Send(ctx context.Context, plaintext string, imageURL *string) error {
	payload := relay.SendMessagePayload{
		SenderID:   s.selfID,
		ReceiverID: s.peerID,
		Content:    plaintext,
		ImageURL:   imageURL,
	}

	if s.engine != nil {
		message := &models.Message{SenderID: s.selfID, ReceiverID: s.peerID}
		if err := s.engine.Seal(ctx, message, plaintext); err != nil {
			return err
		}
		payload.Content = message.Content
		payload.EncryptedAESKey = message.EncryptedAESKey
		payload.SenderEncryptedAESKey = message.SenderEncryptedAESKey
	}

	s.Typing.Stop()
	return s.emit(relay.EventSendMessage, payload)
}

// SetTyping forwards the ephemeral typing signal; the notifier drives it.
func (s *Session) SetTyping(on bool) error {
	event := relay.EventTypingOff
	if on {
		event = relay.EventTypingOn
	}
	return s.emit(event, relay.ConversationPayload{
		SenderID:   s.selfID,
		ReceiverID: s.peerID,
	})
}

// Next blocks for the next server event and decodes it.
func (s *Session) Next() (*Incoming, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}

	var evt relay.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	in := &Incoming{Event: evt.Event}
	switch evt.Event {
	case relay.EventReceiveMessage:
		in.Message = &models.Message{}
		err = json.Unmarshal(evt.Data, in.Message)
	case relay.EventHistory:
		err = json.Unmarshal(evt.Data, &in.History)
	case relay.EventTypingOn, relay.EventTypingOff:
		in.Typing = &relay.TypingPayload{}
		err = json.Unmarshal(evt.Data, in.Typing)
	case relay.EventSendError:
		in.Err = &relay.ErrorPayload{}
		err = json.Unmarshal(evt.Data, in.Err)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", evt.Event, err)
	}
	return in, nil
}

// Open decrypts a received or replayed message for display, falling back
// to the placeholder on failure.
func (s *Session) Open(message *models.Message) string {
	if s.engine == nil {
		return message.Content
	}
	plaintext, err := s.engine.Open(message)
	if err != nil {
		return crypto.DecryptFailedPlaceholder
	}
	return plaintext
}

// Close tears the websocket down; the relay drops the session from its
// room on disconnect.
func (s *Session) Close() error {
	s.Typing.Stop()
	return s.conn.Close()
}
