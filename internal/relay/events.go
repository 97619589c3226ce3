package relay

import (
	"encoding/json"
	"fmt"
)

// Wire event names. Client-to-server and server-to-client events share
// one envelope: {"event": "...", "data": {...}}.
const (
	EventJoinChat       = "join_chat"
	EventTypingOn       = "typing_On"
	EventTypingOff      = "typing_Off"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventGetHistory     = "get_message_history"
	EventHistory        = "message_history"
	EventSendError      = "send_error"
)

type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConversationPayload carries the pair identities for join, history and
// typing requests.
type ConversationPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// SendMessagePayload is the client's outgoing message. Content is
// ciphertext when the wrapped-key fields are set.
type SendMessagePayload struct {
	SenderID              string  `json:"senderId"`
	ReceiverID            string  `json:"receiverId"`
	Content               string  `json:"content"`
	ImageURL              *string `json:"imageUrl,omitempty"`
	EncryptedAESKey       *string `json:"encryptedAESKey,omitempty"`
	SenderEncryptedAESKey *string `json:"senderEncryptedAESKey,omitempty"`
}

// TypingPayload is what the peer side of a room receives for typing
// signals: only the typist's identity.
type TypingPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload reports a failed send back to the originating connection.
type ErrorPayload struct {
	Error string `json:"error"`
}

// MarshalEvent builds the wire form of one event envelope.
func MarshalEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return json.Marshal(Event{Event: name, Data: data})
}
