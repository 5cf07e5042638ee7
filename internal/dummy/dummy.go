// Package dummy provides scripted stand-ins for the Telegram transport, the
// chat model and the image backend. Scripts are comma separated actions
// consumed one per call; the last action repeats once the script runs out.
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
	"github.com/stupiduntilnot/streamchat/internal/model"
	"github.com/stupiduntilnot/streamchat/internal/session"
)

// DummyUserID is the sender of every scripted inbound message.
const DummyUserID = 1

type action struct {
	kind string
	arg  string
}

var actionKinds = []string{"err", "sleep", "msgb64", "msg", "fail"}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch token {
		case "ok", "notmod", "empty":
			actions = append(actions, action{kind: token})
			continue
		}
		parsed := false
		for _, kind := range actionKinds {
			if strings.HasPrefix(token, kind+":") {
				actions = append(actions, action{kind: kind, arg: strings.TrimPrefix(token, kind+":")})
				parsed = true
				break
			}
		}
		if !parsed {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// sleepCtx waits for the given milliseconds or until ctx is done.
func sleepCtx(ctx context.Context, arg string) error {
	ms, _ := strconv.Atoi(arg)
	if ms <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sent is one recorded outbound message or edit.
type Sent struct {
	ChatID    int64
	MessageID int64
	Text      string
}

// Photo is one recorded photo upload.
type Photo struct {
	ChatID  int64
	Caption string
	Bytes   []byte
}

// Commander is a scripted commander.Commander that records outbound calls.
//
// Poll script: ok | err:<class> | sleep:<ms> | msg:<text> | msgb64:<base64>.
// Send script: ok | err:<class> | sleep:<ms>.
// Edit script: ok | err:<class> | notmod | sleep:<ms>.
type Commander struct {
	mu       sync.Mutex
	poll     *scriptRunner
	send     *scriptRunner
	edit     *scriptRunner
	updateID int64
	nextMsg  int64

	sent    []Sent
	edits   []Sent
	actions []string
	photos  []Photo
}

func NewCommander(pollScript, sendScript, editScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	edit, err := newRunner(editScript)
	if err != nil {
		return nil, err
	}
	return &Commander{poll: poll, send: send, edit: edit, updateID: 1, nextMsg: 100}, nil
}

func (c *Commander) GetUpdates(ctx context.Context, offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	a := c.poll.next()
	c.mu.Unlock()

	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return nil, err
		}
		return nil, nil
	case "msg":
		return []cmdpkg.Update{c.inbound(a.arg)}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return nil, fmt.Errorf("dummy commander msgb64 decode failed: %w", err)
		}
		return []cmdpkg.Update{c.inbound(string(raw))}, nil
	default:
		return nil, nil
	}
}

func (c *Commander) inbound(text string) cmdpkg.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateID++
	msg := text
	return cmdpkg.Update{
		UpdateID: c.updateID,
		Message: &cmdpkg.Message{
			MessageID: c.updateID,
			From:      &cmdpkg.User{ID: DummyUserID, Username: "dummy"},
			Chat:      cmdpkg.Chat{ID: DummyUserID},
			Text:      &msg,
			Date:      time.Now().Unix(),
		},
	}
}

func (c *Commander) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	c.mu.Lock()
	a := c.send.next()
	c.mu.Unlock()

	switch a.kind {
	case "err":
		return 0, fmt.Errorf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextMsg++
	c.sent = append(c.sent, Sent{ChatID: chatID, MessageID: c.nextMsg, Text: text})
	return c.nextMsg, nil
}

func (c *Commander) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	c.mu.Lock()
	a := c.edit.next()
	c.mu.Unlock()

	switch a.kind {
	case "err":
		return fmt.Errorf("dummy commander edit error class=%s", emptyAs(a.arg, "command_source_api"))
	case "notmod":
		return fmt.Errorf("dummy commander edit: %w", cmdpkg.ErrNotModified)
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, Sent{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (c *Commander) SendChatAction(ctx context.Context, chatID int64, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

func (c *Commander) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photos = append(c.photos, Photo{ChatID: chatID, Caption: caption, Bytes: append([]byte(nil), photo...)})
	return nil
}

// Sent returns the recorded sendMessage calls.
func (c *Commander) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Edits returns the recorded, applied editMessageText calls.
func (c *Commander) Edits() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.edits...)
}

// Actions returns the recorded chat actions.
func (c *Commander) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

// Photos returns the recorded photo uploads.
func (c *Commander) Photos() []Photo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Photo(nil), c.photos...)
}

// Provider is a scripted model.Provider.
//
// Script: ok | empty | err:<class> | sleep:<ms> | msg:<a|b|c> |
// msgb64:<base64> | fail:<a|b>. msg streams each "|" separated piece as one
// fragment; fail streams its pieces and then errors.
type Provider struct {
	mu     sync.Mutex
	script *scriptRunner
	calls  [][]session.Turn
}

func NewProvider(script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{script: runner}, nil
}

func (p *Provider) Stream(ctx context.Context, turns []session.Turn) (model.Stream, error) {
	p.mu.Lock()
	a := p.script.next()
	p.calls = append(p.calls, append([]session.Turn(nil), turns...))
	p.mu.Unlock()

	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return nil, err
		}
		return &model.SliceStream{Fragments: pieces("dummy-after-sleep")}, nil
	case "empty":
		return &model.SliceStream{}, nil
	case "msg":
		return &model.SliceStream{Fragments: pieces(a.arg)}, nil
	case "fail":
		return &model.SliceStream{
			Fragments: pieces(a.arg),
			Fail:      fmt.Errorf("dummy provider stream broke"),
		}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return nil, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return &model.SliceStream{Fragments: []model.Fragment{model.Text(string(raw))}}, nil
	default:
		return &model.SliceStream{Fragments: pieces("dummy-ok")}, nil
	}
}

// Calls returns the turn lists the provider was asked to complete.
func (p *Provider) Calls() [][]session.Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]session.Turn(nil), p.calls...)
}

func pieces(s string) []model.Fragment {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]model.Fragment, 0, len(parts))
	for _, p := range parts {
		out = append(out, model.Text(p))
	}
	return out
}

// Images is a scripted model.ImageGenerator.
//
// Script: ok | err:<class> | sleep:<ms> | msg:<url>. ok returns URL.
type Images struct {
	mu      sync.Mutex
	script  *scriptRunner
	URL     string
	prompts []string
}

func NewImages(url, script string) (*Images, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Images{script: runner, URL: url}, nil
}

func (g *Images) GenerateImage(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	a := g.script.next()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	switch a.kind {
	case "err":
		return "", fmt.Errorf("dummy images error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return "", err
		}
	case "msg":
		return a.arg, nil
	}
	return g.URL, nil
}

// Prompts returns the prompts received so far.
func (g *Images) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
