package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
)

// MaxMessageChars is Telegram's limit for message text.
const MaxMessageChars = 4096

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Telegram client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>").
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed code=%d: %s", e.Method, e.Code, e.Description)
}

// Is lets errors.Is(err, commander.ErrNotModified) match the edit error
// Telegram returns for unchanged content.
func (e *APIError) Is(target error) bool {
	return target == cmdpkg.ErrNotModified &&
		strings.Contains(strings.ToLower(e.Description), "message is not modified")
}

type Update = cmdpkg.Update
type Message = cmdpkg.Message

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// GetUpdates calls the getUpdates API.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	var updates []Update
	if err := c.do(req, "getUpdates", &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends a text message and returns its message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	var sent sentMessage
	err := c.postJSON(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    truncate(text, MaxMessageChars),
	}, &sent)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text of a message previously sent by the bot.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.postJSON(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       truncate(text, MaxMessageChars),
	}, nil)
}

// SendChatAction shows a status such as "typing" in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.postJSON(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	}, nil)
}

// SendPhoto uploads photo bytes with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram sendPhoto build failed: %w", err)
	}
	if caption != "" {
		if err := w.WriteField("caption", truncate(caption, 1024)); err != nil {
			return fmt.Errorf("telegram sendPhoto build failed: %w", err)
		}
	}
	part, err := w.CreateFormFile("photo", "image.jpg")
	if err != nil {
		return fmt.Errorf("telegram sendPhoto build failed: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("telegram sendPhoto build failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram sendPhoto build failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/sendPhoto", &body)
	if err != nil {
		return fmt.Errorf("telegram sendPhoto request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, "sendPhoto", nil)
}

func (c *Client) postJSON(ctx context.Context, method string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s marshal failed: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return fmt.Errorf("failed to parse %s response status=%d: %w", method, resp.StatusCode, err)
	}
	if !tgResp.OK {
		return &APIError{Method: method, Code: tgResp.ErrorCode, Description: tgResp.Description}
	}
	if out == nil || len(tgResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(tgResp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
