package model

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/stupiduntilnot/streamchat/internal/control"
	"github.com/stupiduntilnot/streamchat/internal/session"
)

// Call ceilings for the two backends.
const (
	DefaultChatTimeout  = 10 * time.Second
	DefaultImageTimeout = 25 * time.Second
)

// WithTimeout bounds the time every stream produced by p spends waiting on
// the backend: the Stream call plus each Next. Time the caller spends
// between pulls does not count. Exceeding the bound surfaces as a
// control.KindTimeout error; any other failure becomes control.KindUpstream.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		d = DefaultChatTimeout
	}
	return &timeoutProvider{inner: p, timeout: d}
}

type timeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

func (p *timeoutProvider) Stream(ctx context.Context, turns []session.Turn) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	b := &budget{left: p.timeout, cancel: cancel}

	var s Stream
	var err error
	b.spend(func() { s, err = p.inner.Stream(ctx, turns) })
	if err != nil {
		err = b.classify(ctx, err)
		cancel()
		return nil, err
	}
	return &timeoutStream{inner: s, ctx: ctx, budget: b}, nil
}

// budget is a deadline that only runs inside spend. Once it runs out the
// request context is cancelled.
type budget struct {
	left    time.Duration
	cancel  context.CancelFunc
	expired atomic.Bool
}

func (b *budget) spend(fn func()) {
	start := time.Now()
	t := time.AfterFunc(b.left, func() {
		b.expired.Store(true)
		b.cancel()
	})
	fn()
	t.Stop()
	b.left -= time.Since(start)
}

func (b *budget) classify(ctx context.Context, err error) error {
	if b.expired.Load() {
		return control.Timeout("chat.stream", err)
	}
	return classify(ctx, "chat.stream", err)
}

type timeoutStream struct {
	inner  Stream
	ctx    context.Context
	budget *budget
}

func (s *timeoutStream) Next() bool {
	if s.budget.expired.Load() || s.ctx.Err() != nil {
		return false
	}
	var ok bool
	s.budget.spend(func() { ok = s.inner.Next() })
	return ok
}

func (s *timeoutStream) Current() Fragment { return s.inner.Current() }

func (s *timeoutStream) Err() error {
	if s.budget.expired.Load() {
		return control.Timeout("chat.stream", context.DeadlineExceeded)
	}
	if err := s.inner.Err(); err != nil {
		return s.budget.classify(s.ctx, err)
	}
	if err := s.ctx.Err(); err != nil {
		return s.budget.classify(s.ctx, err)
	}
	return nil
}

func (s *timeoutStream) Close() error {
	defer s.budget.cancel()
	return s.inner.Close()
}

// WithImageTimeout bounds every GenerateImage call made through g.
func WithImageTimeout(g ImageGenerator, d time.Duration) ImageGenerator {
	if d <= 0 {
		d = DefaultImageTimeout
	}
	return &timeoutImages{inner: g, timeout: d}
}

type timeoutImages struct {
	inner   ImageGenerator
	timeout time.Duration
}

func (g *timeoutImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	url, err := g.inner.GenerateImage(ctx, prompt)
	if err != nil {
		return "", classify(ctx, "image.generate", err)
	}
	return url, nil
}

// classify keeps already-classified errors and decides between timeout and
// upstream for the rest. A parent cancellation that is not a deadline is
// reported as upstream so it is never mistaken for a slow backend.
func classify(ctx context.Context, op string, err error) error {
	var ce *control.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return control.Timeout(op, err)
	}
	return control.Upstream(op, err)
}
