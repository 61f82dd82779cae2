package repositories

import "context"

// LiveTranscriber abstracts a streaming speech-to-text provider.
type LiveTranscriber interface {
	// OpenStream establishes one outbound connection to the provider.
	// The context bounds the connection handshake only; the returned
	// stream outlives it.
	OpenStream(ctx context.Context, config AudioConfig) (TranscriptionStream, error)
}

// AudioConfig represents audio configuration for a transcription stream.
type AudioConfig struct {
	Model       string `json:"model"`
	Language    string `json:"language"`
	Encoding    string `json:"encoding"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	SmartFormat bool   `json:"smart_format"`
}

// TranscriptionStream is a live connection to the provider. A stream is
// exclusively owned by one session and is never shared.
type TranscriptionStream interface {
	// Send forwards raw audio bytes to the provider. Sending on a closed
	// stream drops the chunk and returns nil; audio loss during an
	// upstream hiccup must never block or crash the relay.
	Send(audio []byte) error

	// Results delivers transcript events in the order the provider
	// produced them. The channel is closed when the stream ends for any
	// reason; check Err afterwards to distinguish failure from Close.
	Results() <-chan TranscriptEvent

	// Err reports why the stream ended. It returns nil before Results is
	// closed and after a deliberate Close.
	Err() error

	// Close shuts the connection down. Idempotent.
	Close() error
}

// TranscriptEvent is a single recognition result from the provider.
type TranscriptEvent struct {
	Text       string                 `json:"text"`
	IsFinal    bool                   `json:"is_final"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
