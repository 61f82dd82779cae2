package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxrelay/server/domain/repositories"
	"github.com/voxrelay/server/internal/metrics"
)

// resultBuffer bounds how many undelivered transcript events a stream
// holds before the read loop backpressures.
const resultBuffer = 16

// Deepgram implements LiveTranscriber against Deepgram's live
// transcription WebSocket API.
type Deepgram struct {
	apiKey   string
	endpoint string
	logger   *zap.Logger
}

// NewDeepgram creates a Deepgram transcriber. The endpoint is the wss://
// listen URL; query parameters are appended per stream.
func NewDeepgram(apiKey, endpoint string, logger *zap.Logger) *Deepgram {
	return &Deepgram{
		apiKey:   apiKey,
		endpoint: endpoint,
		logger:   logger,
	}
}

// OpenStream dials the provider and starts the result reader. The context
// bounds the handshake; a slow or unreachable provider fails here rather
// than hanging the caller.
func (d *Deepgram) OpenStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}

	q := url.Values{}
	q.Set("model", config.Model)
	q.Set("language", config.Language)
	q.Set("encoding", config.Encoding)
	q.Set("sample_rate", strconv.Itoa(config.SampleRate))
	q.Set("channels", strconv.Itoa(config.Channels))
	q.Set("smart_format", strconv.FormatBool(config.SmartFormat))
	u.RawQuery = q.Encode()

	header := http.Header{
		"Authorization": {"Token " + d.apiKey},
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			metrics.UpstreamErrors.WithLabelValues("handshake").Inc()
			return nil, fmt.Errorf("deepgram handshake rejected (%s): %w", resp.Status, err)
		}
		metrics.UpstreamErrors.WithLabelValues("dial").Inc()
		return nil, fmt.Errorf("failed to dial deepgram: %w", err)
	}

	metrics.UpstreamConnects.Inc()
	d.logger.Info("Connected to transcription provider",
		zap.String("model", config.Model),
		zap.String("language", config.Language),
		zap.Int("sample_rate", config.SampleRate))

	stream := &deepgramStream{
		conn:    conn,
		results: make(chan repositories.TranscriptEvent, resultBuffer),
		logger:  d.logger,
	}
	go stream.readLoop()

	return stream, nil
}

// deepgramStream is one live connection to the provider.
type deepgramStream struct {
	conn    *websocket.Conn
	results chan repositories.TranscriptEvent
	logger  *zap.Logger

	// writeMu serializes Send and Close; gorilla connections allow at
	// most one concurrent writer.
	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// resultMessage mirrors the provider's "Results" wire message. Fields the
// relay does not use are left out; parsing is confined to this adapter so
// provider format changes never reach the session layer.
type resultMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// closeStreamMessage asks the provider to flush and finish the stream.
type closeStreamMessage struct {
	Type string `json:"type"`
}

func (s *deepgramStream) Send(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	if s.closed.Load() {
		metrics.AudioChunksDropped.WithLabelValues("upstream_closed").Inc()
		return nil
	}

	s.writeMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, audio)
	s.writeMu.Unlock()
	if err != nil {
		metrics.AudioChunksDropped.WithLabelValues("write_failed").Inc()
		return fmt.Errorf("failed to send audio to provider: %w", err)
	}

	return nil
}

func (s *deepgramStream) Results() <-chan repositories.TranscriptEvent {
	return s.results
}

func (s *deepgramStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.writeMu.Lock()
		// Best effort: ask the provider to flush, then close cleanly.
		// The connection teardown below is what actually matters.
		if payload, merr := json.Marshal(closeStreamMessage{Type: "CloseStream"}); merr == nil {
			_ = s.conn.WriteMessage(websocket.TextMessage, payload)
		}
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

// readLoop pumps provider messages into the results channel until the
// connection ends. It owns the results channel and closes it on exit.
func (s *deepgramStream) readLoop() {
	defer close(s.results)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				metrics.UpstreamErrors.WithLabelValues("read").Inc()
				s.errMu.Lock()
				s.err = fmt.Errorf("provider connection lost: %w", err)
				s.errMu.Unlock()
				s.logger.Warn("Provider connection lost", zap.Error(err))
			}
			return
		}

		event, ok := s.parseResult(message)
		if !ok {
			continue
		}

		s.results <- event
	}
}

// parseResult decodes one provider message. Malformed or unrecognized
// messages are logged and dropped, never fatal.
func (s *deepgramStream) parseResult(message []byte) (repositories.TranscriptEvent, bool) {
	var result resultMessage
	if err := json.Unmarshal(message, &result); err != nil {
		metrics.MalformedMessages.WithLabelValues("upstream").Inc()
		s.logger.Warn("Dropping malformed provider message",
			zap.Error(err),
			zap.Int("size", len(message)))
		return repositories.TranscriptEvent{}, false
	}

	switch result.Type {
	case "Results":
	case "Metadata", "SpeechStarted", "UtteranceEnd":
		// Housekeeping messages the relay has no use for.
		return repositories.TranscriptEvent{}, false
	default:
		metrics.MalformedMessages.WithLabelValues("upstream").Inc()
		s.logger.Warn("Dropping unrecognized provider message",
			zap.String("type", result.Type))
		return repositories.TranscriptEvent{}, false
	}

	if len(result.Channel.Alternatives) == 0 {
		return repositories.TranscriptEvent{}, false
	}

	best := result.Channel.Alternatives[0]
	if best.Transcript == "" {
		return repositories.TranscriptEvent{}, false
	}

	return repositories.TranscriptEvent{
		Text:       best.Transcript,
		IsFinal:    result.IsFinal,
		Confidence: best.Confidence,
		Metadata: map[string]interface{}{
			"start":        result.Start,
			"duration":     result.Duration,
			"speech_final": result.SpeechFinal,
		},
	}, true
}
