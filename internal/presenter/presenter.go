// Package presenter applies stream updates to the single placeholder message
// that carries a reply.
package presenter

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
	"github.com/stupiduntilnot/streamchat/internal/control"
	"github.com/stupiduntilnot/streamchat/internal/metrics"
	"github.com/stupiduntilnot/streamchat/internal/stream"
)

// DefaultPace is the pause after every applied edit. It keeps one reply
// under the transport's per-chat edit rate.
const DefaultPace = 30 * time.Millisecond

// Editor is the part of the transport a presenter needs.
type Editor interface {
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

// Presenter owns one placeholder message for the life of a request.
type Presenter struct {
	editor    Editor
	chatID    int64
	messageID int64
	pace      time.Duration

	Metrics *metrics.Metrics
	Log     zerolog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a presenter for messageID in chatID. A non-positive pace
// means DefaultPace.
func New(editor Editor, chatID, messageID int64, pace time.Duration) *Presenter {
	if pace <= 0 {
		pace = DefaultPace
	}
	return &Presenter{
		editor:    editor,
		chatID:    chatID,
		messageID: messageID,
		pace:      pace,
		Log:       zerolog.Nop(),
		sleep:     sleepCtx,
	}
}

// MessageID returns the placeholder being edited.
func (p *Presenter) MessageID() int64 { return p.messageID }

// Apply replaces the placeholder text with u.Text.
//
// An edit rejected as unchanged is swallowed without pacing. Any other
// failure is retried once at once with the same text; a second failure is
// returned as a presentation error. Every applied edit is followed by the
// pacing pause.
func (p *Presenter) Apply(ctx context.Context, u stream.Update) error {
	err := p.editor.EditMessageText(ctx, p.chatID, p.messageID, u.Text)
	if errors.Is(err, cmdpkg.ErrNotModified) {
		p.Metrics.RecordEdit(metrics.EditNotModified)
		return nil
	}
	if err != nil {
		p.Metrics.RecordEdit(metrics.EditRetried)
		p.Log.Warn().Err(err).Int64("message_id", p.messageID).Bool("final", u.Final).Msg("edit failed, retrying")
		err = p.editor.EditMessageText(ctx, p.chatID, p.messageID, u.Text)
		if errors.Is(err, cmdpkg.ErrNotModified) {
			p.Metrics.RecordEdit(metrics.EditNotModified)
			return nil
		}
		if err != nil {
			p.Metrics.RecordEdit(metrics.EditFailed)
			return control.Presentation("presenter.edit", err)
		}
	}
	p.Metrics.RecordEdit(metrics.EditApplied)
	return p.sleep(ctx, p.pace)
}

// Emit adapts Apply to stream.EmitFunc.
func (p *Presenter) Emit() stream.EmitFunc {
	return p.Apply
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
