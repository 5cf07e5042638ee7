// Package openai adapts the OpenAI API (or any compatible endpoint) to the
// model.Provider and model.ImageGenerator interfaces.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/stupiduntilnot/streamchat/internal/model"
	"github.com/stupiduntilnot/streamchat/internal/session"
)

const (
	DefaultChatModel  = "gpt-4o-mini"
	DefaultImageModel = "dall-e-2"
	DefaultImageSize  = openai.ImageGenerateParamsSize1024x1024
)

// Options configures a Client. Empty models fall back to the defaults above.
// Temperature is always sent, zero included.
type Options struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	ImageModel  string
	Temperature float64
	MaxRetries  int
}

// Client streams chat completions and generates images.
type Client struct {
	client      openai.Client
	chatModel   string
	imageModel  string
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
	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	return &Client{
		client:      openai.NewClient(reqOpts...),
		chatModel:   chatModel,
		imageModel:  imageModel,
		temperature: opts.Temperature,
	}
}

// Stream starts a streamed chat completion over turns.
func (c *Client) Stream(ctx context.Context, turns []session.Turn) (model.Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.chatModel),
		Messages:    buildMessages(turns),
		Temperature: openai.Float(c.temperature),
	}
	return &chatStream{s: c.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func buildMessages(turns []session.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case session.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return msgs
}

// chatStream maps SSE chunks to fragments. Chunks without choices or with
// empty content (the role preamble, the finish chunk) become text-less
// fragments.
type chatStream struct {
	s   *ssestream.Stream[openai.ChatCompletionChunk]
	cur model.Fragment
}

func (s *chatStream) Next() bool {
	if !s.s.Next() {
		return false
	}
	chunk := s.s.Current()
	s.cur = model.Fragment{}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
		s.cur = model.Text(chunk.Choices[0].Delta.Content)
	}
	return true
}

func (s *chatStream) Current() model.Fragment { return s.cur }

func (s *chatStream) Err() error {
	if err := s.s.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}
	return nil
}

func (s *chatStream) Close() error { return s.s.Close() }

// GenerateImage requests one 1024x1024 image and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.imageModel),
		N:              openai.Int(1),
		Size:           DefaultImageSize,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("openai image request failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("openai image response carried no url")
	}
	return resp.Data[0].URL, nil
}
