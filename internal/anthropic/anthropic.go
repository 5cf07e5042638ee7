// Package anthropic adapts the Anthropic Messages API to model.Provider.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/stupiduntilnot/streamchat/internal/model"
	"github.com/stupiduntilnot/streamchat/internal/session"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
)

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int
}

type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewClient(opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	m := opts.Model
	if m == "" {
		m = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		client:      anthropic.NewClient(reqOpts...),
		model:       m,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}
}

// Stream starts a streamed message. System turns are lifted into the
// request's system prompt since the Messages API has no system role.
func (c *Client) Stream(ctx context.Context, turns []session.Turn) (model.Stream, error) {
	system, msgs := buildMessages(turns)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    msgs,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return &messageStream{s: c.client.Messages.NewStreaming(ctx, params)}, nil
}

func buildMessages(turns []session.Turn) (string, []anthropic.MessageParam) {
	var system []string
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleSystem:
			system = append(system, t.Content)
		case session.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return strings.Join(system, "\n\n"), msgs
}

// messageStream yields a text fragment for every text delta and a
// text-less fragment for every other event.
type messageStream struct {
	s   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	cur model.Fragment
}

func (s *messageStream) Next() bool {
	if !s.s.Next() {
		return false
	}
	s.cur = model.Fragment{}
	if ev, ok := s.s.Current().AsAny().(anthropic.ContentBlockDeltaEvent); ok {
		if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
			s.cur = model.Text(d.Text)
		}
	}
	return true
}

func (s *messageStream) Current() model.Fragment { return s.cur }

func (s *messageStream) Err() error {
	if err := s.s.Err(); err != nil {
		return fmt.Errorf("anthropic streaming error: %w", err)
	}
	return nil
}

func (s *messageStream) Close() error { return s.s.Close() }
