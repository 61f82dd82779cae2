package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxrelay/server/domain/repositories"
	"github.com/voxrelay/server/internal/metrics"
)

// SessionState is the lifecycle state of a relay session.
type SessionState string

const (
	// StateIdle means no upstream connection exists; audio is dropped.
	StateIdle SessionState = "idle"
	// StateStreaming means audio is being forwarded upstream.
	StateStreaming SessionState = "streaming"
	// StateTerminated is entered on client disconnect and is absorbing.
	StateTerminated SessionState = "terminated"
)

// Client-visible state names sent in state acknowledgements.
const (
	stateListening = "listening"
	stateIdle      = "idle"
)

// Error codes sent to the client.
const (
	errCodeConnection = "connection_error"
	errCodeProtocol   = "protocol_error"
)

// Session bridges one client connection to at most one live provider
// stream. All of its state is owned exclusively by the session; other
// sessions never touch it.
type Session struct {
	hub *Hub

	// The client-facing websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames, drained by writePump.
	send chan WriteData

	// Closed exactly once when the session terminates.
	done chan struct{}

	// Session identity, assigned at connect time.
	id string

	// Audio configuration the upstream stream is opened with.
	audio repositories.AudioConfig

	logger *zap.Logger

	// mu guards state and upstream.
	mu       sync.Mutex
	state    SessionState
	upstream repositories.TranscriptionStream

	terminateOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, audio repositories.AudioConfig, logger *zap.Logger) *Session {
	id := newSessionID()
	return &Session{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, 256),
		done:   make(chan struct{}),
		id:     id,
		audio:  audio,
		state:  StateIdle,
		logger: logger.With(zap.String("sessionID", id)),
	}
}

// ID returns the session's connection identity.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// readPump pumps messages from the client connection into the session.
// Control and audio handling run serially here, which is what preserves
// the upstream forwarding order.
func (s *Session) readPump() {
	defer func() {
		s.terminate()
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			s.handleControl(message)
		case websocket.BinaryMessage:
			s.handleAudio(message)
		default:
			s.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps outbound frames to the client connection. It is the
// only goroutine writing to conn.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(message.Type, message.Payload); err != nil {
				s.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleControl processes a control frame from the client.
func (s *Session) handleControl(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues("client").Inc()
		s.logger.Warn("Failed to parse control message", zap.Error(err))
		s.enqueue(NewErrorMessage(errCodeProtocol, "malformed control message"))
		return
	}

	switch msg.Action {
	case ActionStart:
		s.startStreaming()
	case ActionStop:
		s.stopStreaming()
	default:
		s.logger.Warn("Ignoring unknown control action", zap.String("action", msg.Action))
	}
}

// handleAudio forwards one binary audio chunk upstream. Outside the
// streaming state the chunk is dropped silently; the client may keep
// sending briefly around a start/stop race and that is tolerated.
func (s *Session) handleAudio(data []byte) {
	s.mu.Lock()
	stream := s.upstream
	streaming := s.state == StateStreaming
	s.mu.Unlock()

	if !streaming || stream == nil {
		metrics.AudioChunksDropped.WithLabelValues("not_streaming").Inc()
		s.logger.Debug("Dropping audio chunk outside streaming state",
			zap.Int("size", len(data)))
		return
	}

	if err := stream.Send(data); err != nil {
		// Never fatal; the stream's read loop surfaces the actual
		// connection failure.
		s.logger.Warn("Failed to forward audio chunk", zap.Error(err))
		return
	}

	metrics.AudioChunksForwarded.Inc()
}

// startStreaming opens the upstream connection lazily. A start while
// already streaming is a no-op, so two upstream connections can never
// coexist for one session.
func (s *Session) startStreaming() {
	s.mu.Lock()

	switch s.state {
	case StateStreaming:
		s.mu.Unlock()
		s.logger.Debug("Ignoring start while already streaming")
		return
	case StateTerminated:
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.hub.connectTimeout)
	stream, err := s.hub.transcriber.OpenStream(ctx, s.audio)
	cancel()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to open upstream stream", zap.Error(err))
		s.enqueue(NewErrorMessage(errCodeConnection, "failed to reach transcription service"))
		return
	}

	s.upstream = stream
	s.state = StateStreaming
	s.mu.Unlock()

	go s.pumpTranscripts(stream)

	s.logger.Info("Streaming started",
		zap.String("model", s.audio.Model),
		zap.Int("sample_rate", s.audio.SampleRate))
	s.enqueue(NewStateMessage(stateListening))
}

// stopStreaming closes the upstream connection and returns to idle.
// Runs synchronously in readPump, so the close always completes before a
// subsequent start is processed.
func (s *Session) stopStreaming() {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	stream := s.upstream
	s.upstream = nil
	s.state = StateIdle
	s.mu.Unlock()

	if err := stream.Close(); err != nil {
		s.logger.Warn("Failed to close upstream stream", zap.Error(err))
	}

	s.logger.Info("Streaming stopped")
	s.enqueue(NewStateMessage(stateIdle))
}

// pumpTranscripts forwards provider events to the client until the stream
// ends. One pump goroutine exists per upstream stream; events arrive on a
// single channel, so delivery order matches provider order.
func (s *Session) pumpTranscripts(stream repositories.TranscriptionStream) {
	for event := range stream.Results() {
		s.mu.Lock()
		current := s.upstream == stream
		s.mu.Unlock()
		if !current {
			// Stale event from a stream already stopped.
			continue
		}

		metrics.TranscriptsDelivered.Inc()
		s.enqueue(NewTranscriptMessage(event))
	}

	err := stream.Err()
	if err == nil {
		return
	}

	// The stream died underneath us. Surface it once and return to idle;
	// the client must re-initiate start, there is no automatic retry.
	s.mu.Lock()
	if s.upstream != stream {
		s.mu.Unlock()
		return
	}
	s.upstream = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Warn("Upstream stream failed", zap.Error(err))
	s.enqueue(NewErrorMessage(errCodeConnection, "transcription service connection lost"))
}

// terminate tears down the session exactly once, releasing any upstream
// connection on every exit path.
func (s *Session) terminate() {
	s.terminateOnce.Do(func() {
		s.mu.Lock()
		stream := s.upstream
		s.upstream = nil
		s.state = StateTerminated
		s.mu.Unlock()

		if stream != nil {
			if err := stream.Close(); err != nil {
				s.logger.Warn("Failed to close upstream stream", zap.Error(err))
			}
		}

		close(s.done)
		s.logger.Info("Session terminated")
	})
}

// enqueue serializes a message and queues it for the client. If the
// session is gone or the client cannot keep up, the message is dropped;
// a send to a disconnected peer is never an error.
func (s *Session) enqueue(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}

	select {
	case <-s.done:
	case s.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		s.logger.Warn("Dropping outbound message for slow client")
	}
}
