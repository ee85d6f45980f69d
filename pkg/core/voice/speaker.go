package voice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/voxrelay/voxrelay/pkg/core/fanout"
	"github.com/voxrelay/voxrelay/pkg/core/voice/tts"
)

// Speaker turns one side of a duplicated text stream into ordered audio.
//
// Sentence groups are synthesized strictly one at a time: a group's audio is
// fully received and emitted before the next group is sent, so chunks reach
// the listener in spoken order even when the text side runs far ahead.
type Speaker struct {
	Provider    tts.Provider
	Opts        tts.SynthesizeOptions
	MinGroupLen int
	Logger      *slog.Logger

	// OnChunk receives each audio chunk in playback order.
	OnChunk func(chunk []byte)
	// OnDone fires after the final chunk of the final group. It does not
	// fire when the speaker is cancelled.
	OnDone func()
}

// Speak consumes text until the reader is exhausted, synthesizing sentence
// groups as they form and flushing the remainder at the end.
//
// Cancelling ctx stops audio without error; stopping audio is a normal
// outcome, not a failure. A synthesis error aborts remaining groups and is
// returned so the caller can surface it out of band.
func (s *Speaker) Speak(ctx context.Context, text *fanout.Reader[string]) error {
	seg := NewSegmenter(s.MinGroupLen)

	for {
		frag, ok, err := text.Next(ctx)
		if err != nil {
			return nil
		}
		if !ok {
			break
		}
		group, ready := seg.Push(frag)
		if !ready {
			continue
		}
		if err := s.speakGroup(ctx, group); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}

	if rest, ok := seg.Flush(); ok {
		if err := s.speakGroup(ctx, rest); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}

	if s.OnDone != nil {
		s.OnDone()
	}
	return nil
}

func (s *Speaker) speakGroup(ctx context.Context, group string) error {
	if s.Logger != nil {
		s.Logger.Debug("synthesizing sentence group", "provider", s.Provider.Name(), "chars", len(group))
	}
	stream, err := s.Provider.SynthesizeStream(ctx, group, s.Opts)
	if err != nil {
		return err
	}
	defer stream.Close()

	for chunk := range stream.Chunks() {
		if s.OnChunk != nil {
			s.OnChunk(chunk)
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
