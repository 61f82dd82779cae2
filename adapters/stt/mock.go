package stt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/voxrelay/server/domain/repositories"
)

// MockTranscriber implements LiveTranscriber entirely in memory. It is
// used by tests and by local development without provider credentials.
type MockTranscriber struct {
	logger *zap.Logger

	mu      sync.Mutex
	streams []*MockStream

	// FailNext makes the next OpenStream call fail, simulating a
	// provider handshake failure.
	FailNext bool
}

// NewMockTranscriber creates a new in-memory transcriber.
func NewMockTranscriber(logger *zap.Logger) *MockTranscriber {
	return &MockTranscriber{
		logger: logger,
	}
}

// OpenStream returns a fresh scripted stream.
func (m *MockTranscriber) OpenStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return nil, fmt.Errorf("mock transcriber: connection refused")
	}

	m.logger.Debug("Mock stream opened",
		zap.String("model", config.Model),
		zap.Int("sample_rate", config.SampleRate))

	stream := &MockStream{
		results: make(chan repositories.TranscriptEvent, 16),
	}
	m.streams = append(m.streams, stream)
	return stream, nil
}

// Streams returns every stream opened so far, oldest first.
func (m *MockTranscriber) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// MockStream records sent audio and replays scripted transcript events.
type MockStream struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	err    error

	results chan repositories.TranscriptEvent
}

func (s *MockStream) Send(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	chunk := make([]byte, len(audio))
	copy(chunk, audio)
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *MockStream) Results() <-chan repositories.TranscriptEvent {
	return s.results
}

func (s *MockStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

// Emit delivers a scripted transcript event to the stream's owner.
func (s *MockStream) Emit(event repositories.TranscriptEvent) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.results <- event
}

// Fail simulates the provider dropping the connection.
func (s *MockStream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.results)
}

// Sent returns the audio chunks forwarded so far, in receipt order.
func (s *MockStream) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// Closed reports whether Close or Fail has been called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
