package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/voxrelay/server/domain/repositories"
)

// MessageType defines the type of a server-to-client WebSocket message.
type MessageType string

// Supported message types
const (
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeState      MessageType = "state"
	MessageTypeError      MessageType = "error"
)

// Control actions accepted from the client.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// ControlMessage is a client-sent instruction governing session state.
type ControlMessage struct {
	Action string `json:"action"`
}

// TranscriptMessage carries one recognition result to the client.
type TranscriptMessage struct {
	Type          MessageType            `json:"type"`
	Transcription string                 `json:"transcription"`
	IsFinal       bool                   `json:"is_final"`
	Confidence    float64                `json:"confidence,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// StateMessage acknowledges a session state transition.
type StateMessage struct {
	Type  MessageType `json:"type"`
	State string      `json:"state"`
}

// ErrorMessage reports a non-fatal failure, distinguishable from a
// transcript update.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"error_code"`
	Message string      `json:"message"`
}

// ParseControlMessage decodes a client control frame.
func ParseControlMessage(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("invalid control message: %w", err)
	}
	if msg.Action == "" {
		return ControlMessage{}, fmt.Errorf("control message missing action")
	}
	return msg, nil
}

// NewTranscriptMessage reshapes a provider event into the client-facing
// contract.
func NewTranscriptMessage(event repositories.TranscriptEvent) TranscriptMessage {
	return TranscriptMessage{
		Type:          MessageTypeTranscript,
		Transcription: event.Text,
		IsFinal:       event.IsFinal,
		Confidence:    event.Confidence,
		Metadata:      event.Metadata,
	}
}

// NewStateMessage creates a state acknowledgement.
func NewStateMessage(state string) StateMessage {
	return StateMessage{
		Type:  MessageTypeState,
		State: state,
	}
}

// NewErrorMessage creates a standardized error message.
func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{
		Type:    MessageTypeError,
		Code:    code,
		Message: message,
	}
}
