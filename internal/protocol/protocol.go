package protocol

import (
	"encoding/json"
	"fmt"
)

// Client→server control message types.
const (
	TypeChat            = "chat"
	TypeSwitchCharacter = "switch-character"
	TypeStartChat       = "start-chat"
)

// Server→client control message types. Binary frames carry raw audio and
// bypass this codec entirely.
const (
	TypeThinking    = "thinking"
	TypeEmotion     = "emotion"
	TypeAudioEnd    = "audio-end"
	TypeResponseEnd = "response-end"
	TypeChatStarted = "chat-started"
	TypeChatEnded   = "chat-ended"
	TypeError       = "error"
)

// ClientMessage is the inbound control envelope.
type ClientMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	CharacterID string `json:"characterId,omitempty"`
}

// ServerMessage is the outbound control envelope. SentenceIndex is a
// pointer so index 0 survives serialization.
type ServerMessage struct {
	Type          string `json:"type"`
	Emotion       string `json:"emotion,omitempty"`
	SentenceIndex *int   `json:"sentenceIndex,omitempty"`
	FullText      string `json:"fullText,omitempty"`
	Message       string `json:"message,omitempty"`
}

func Thinking() ServerMessage { return ServerMessage{Type: TypeThinking} }

func EmotionMsg(emotion string) ServerMessage {
	return ServerMessage{Type: TypeEmotion, Emotion: emotion}
}

func AudioEnd(sentenceIndex int) ServerMessage {
	return ServerMessage{Type: TypeAudioEnd, SentenceIndex: &sentenceIndex}
}

func ResponseEnd(fullText string) ServerMessage {
	return ServerMessage{Type: TypeResponseEnd, FullText: fullText}
}

func ChatStarted() ServerMessage { return ServerMessage{Type: TypeChatStarted} }

func ChatEnded() ServerMessage { return ServerMessage{Type: TypeChatEnded} }

func ErrorMsg(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

// Encode serializes a server message to a JSON text frame.
func Encode(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeClient parses and validates an inbound control frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed control message: %w", err)
	}
	switch msg.Type {
	case TypeChat:
		if msg.Message == "" {
			return ClientMessage{}, fmt.Errorf("chat message requires a message field")
		}
	case TypeSwitchCharacter, TypeStartChat:
		if msg.CharacterID == "" {
			return ClientMessage{}, fmt.Errorf("%s requires a characterId field", msg.Type)
		}
	default:
		return ClientMessage{}, fmt.Errorf("unknown control message type %q", msg.Type)
	}
	return msg, nil
}
