// Package model defines the narrow interfaces the bot uses to reach
// language-model and image-generation backends.
package model

import (
	"context"

	"github.com/stupiduntilnot/streamchat/internal/session"
)

// Fragment is one incremental piece of a streamed completion. Delta is nil
// for chunks that carry no text (role preambles, usage-only chunks); such
// fragments must be skipped, not treated as "".
type Fragment struct {
	Delta *string
}

// Text returns a fragment carrying s.
func Text(s string) Fragment {
	return Fragment{Delta: &s}
}

// Stream is a finite, non-restartable sequence of fragments.
//
//	for s.Next() {
//		f := s.Current()
//	}
//	err := s.Err()
type Stream interface {
	Next() bool
	Current() Fragment
	Err() error
	Close() error
}

// Provider starts a streamed chat completion over an ordered list of turns.
type Provider interface {
	Stream(ctx context.Context, turns []session.Turn) (Stream, error)
}

// ImageGenerator turns a prompt into a retrievable URL of one generated image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// SliceStream replays a fixed list of fragments, optionally failing at the end.
type SliceStream struct {
	Fragments []Fragment
	Fail      error

	pos    int
	closed bool
}

func (s *SliceStream) Next() bool {
	if s.closed || s.pos >= len(s.Fragments) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Current() Fragment {
	if s.pos == 0 {
		return Fragment{}
	}
	return s.Fragments[s.pos-1]
}

func (s *SliceStream) Err() error {
	if s.pos >= len(s.Fragments) {
		return s.Fail
	}
	return nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
