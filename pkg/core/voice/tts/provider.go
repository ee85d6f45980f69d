// Package tts streams synthesized speech for sentence groups.
package tts

import (
	"context"
	"sync"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// SynthesizeStream converts one sentence group to streaming audio. The
	// returned stream yields raw audio chunks in playback order. Cancelling
	// ctx aborts synthesis and closes the stream.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string // Voice identifier
	Model      string // Provider model identifier
	Format     string // Output format, e.g. "pcm_24000"
	SampleRate int    // Sample rate hint for formats that take one
}

// SynthesisStream carries streaming audio output for one utterance.
type SynthesisStream struct {
	chunks   chan []byte
	err      error
	done     chan struct{}
	doneOnce sync.Once
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks. It is closed when synthesis
// finishes or fails; check Err afterwards.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err blocks until the stream is finished and returns its error, if any. It
// is meant to be called after Chunks is exhausted.
func (s *SynthesisStream) Err() error {
	<-s.done
	return s.err
}

// Close releases the consumer side early, unblocking the producer. Safe to
// call more than once.
func (s *SynthesisStream) Close() error {
	s.closeDone()
	return nil
}

func (s *SynthesisStream) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Send delivers a chunk to the consumer. Returns false if the stream was
// closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// Finish records the terminal error (nil on success) and closes the chunks
// channel. Called exactly once by the producing provider. If the consumer
// already closed the stream, the error is discarded.
func (s *SynthesisStream) Finish(err error) {
	s.doneOnce.Do(func() {
		s.err = err
		close(s.done)
	})
	close(s.chunks)
}
