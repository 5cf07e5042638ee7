package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
	"github.com/stupiduntilnot/streamchat/internal/control"
	"github.com/stupiduntilnot/streamchat/internal/db"
	"github.com/stupiduntilnot/streamchat/internal/metrics"
)

// Poller long-polls the transport and hands every message to the Handler
// on its own goroutine. Different users never wait on each other.
type Poller struct {
	Commander cmdpkg.Commander
	Handler   *Handler
	Circuit   *control.CircuitBreaker

	// DB backs the inbox and audit events; nil disables both.
	DB            *sql.DB
	ParentEventID *int64

	Timeout       int
	Sleep         time.Duration
	DropPending   bool
	PendingWindow int64
	PendingMax    int

	Metrics *metrics.Metrics
	Log     zerolog.Logger

	wg sync.WaitGroup
}

// Run polls until ctx is cancelled, then waits for in-flight requests.
// Requests are detached from ctx so a shutdown lets them finish.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()

	offset := p.StartOffset(ctx)
	p.Log.Info().Int64("offset", offset).Msg("polling started")
	for ctx.Err() == nil {
		next, err := p.PollOnce(ctx, offset)
		if err != nil {
			p.pause(ctx)
			continue
		}
		offset = next
	}
	p.Log.Info().Msg("polling stopped, draining requests")
	return nil
}

// PollOnce fetches one batch starting at offset, dispatches it and returns
// the next offset. A call refused by the open breaker returns an error
// without touching the transport.
func (p *Poller) PollOnce(ctx context.Context, offset int64) (int64, error) {
	if p.Circuit == nil {
		p.Circuit = control.NewCircuitBreaker(5, 30*time.Second)
	}
	prev := p.Circuit.State()
	if !p.Circuit.Allow(time.Now()) {
		return offset, errCircuitOpen
	}
	if prev == control.CircuitOpen && p.Circuit.State() == control.CircuitHalfOpen {
		p.Log.Info().Str("error_class", p.Circuit.OpenedClass()).Msg("circuit half-open, probing")
	}

	updates, err := p.Commander.GetUpdates(ctx, offset, p.Timeout)
	if err != nil {
		if ctx.Err() != nil {
			return offset, ctx.Err()
		}
		errClass := classifyError(err)
		p.Metrics.RecordPollError(errClass)
		p.Log.Warn().Err(err).Str("error_class", errClass).Msg("getUpdates failed")
		if p.Circuit.RecordFailure(errClass, time.Now()) {
			p.event(db.EventCircuitOpened, map[string]any{
				"error_class":      errClass,
				"threshold":        p.Circuit.Threshold,
				"cooldown_seconds": int(p.Circuit.Cooldown.Seconds()),
			})
		}
		return offset, err
	}
	if p.Circuit.RecordSuccess() {
		p.event(db.EventCircuitClosed, map[string]any{"recovered": true})
	}

	for _, update := range updates {
		offset = update.UpdateID + 1
		p.dispatch(ctx, update)
	}
	return offset, nil
}

// Wait blocks until every dispatched request has finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) dispatch(ctx context.Context, update cmdpkg.Update) {
	msg := update.Message
	if msg == nil || msg.Text == nil || *msg.Text == "" {
		return
	}
	if p.DB != nil {
		err := db.RecordInbox(p.DB, db.InboxEntry{
			UpdateID:    update.UpdateID,
			ChatID:      msg.Chat.ID,
			UserID:      msg.UserID(),
			Text:        *msg.Text,
			MessageDate: msg.Date,
		})
		if err != nil {
			p.Log.Warn().Err(err).Int64("update_id", update.UpdateID).Msg("inbox record failed")
		}
	}

	reqCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.Handler.Handle(reqCtx, msg)
		if p.DB == nil {
			return
		}
		status, errText := db.InboxDone, ""
		if err != nil {
			status, errText = db.InboxFailed, truncate(err.Error(), 1000)
		}
		if err := db.MarkInbox(p.DB, update.UpdateID, status, errText); err != nil {
			p.Log.Warn().Err(err).Int64("update_id", update.UpdateID).Msg("inbox update failed")
		}
	}()
}

// StartOffset resumes after the last recorded update. On a fresh start with
// DropPending set, old pending updates are skipped: only those inside the
// pending window are kept, at most PendingMax of them.
func (p *Poller) StartOffset(ctx context.Context) int64 {
	var offset int64
	if p.DB != nil {
		derived, err := db.DeriveOffset(p.DB)
		if err != nil {
			p.Log.Warn().Err(err).Msg("failed to derive offset")
		}
		offset = derived
	}
	if offset != 0 || !p.DropPending {
		return offset
	}
	bootstrapped, err := bootstrapOffset(ctx, p.Commander, p.PendingWindow, p.PendingMax, time.Now())
	if err != nil {
		p.Log.Warn().Err(err).Msg("bootstrap offset error")
		return 0
	}
	return bootstrapped
}

func bootstrapOffset(ctx context.Context, commander cmdpkg.Commander, pendingWindowSeconds int64, pendingMaxMessages int, now time.Time) (int64, error) {
	updates, err := commander.GetUpdates(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	cutoff := now.Unix() - pendingWindowSeconds

	var inWindow []cmdpkg.Update
	for _, u := range updates {
		if u.Message != nil && u.Message.Date >= cutoff {
			inWindow = append(inWindow, u)
		}
	}

	if len(inWindow) == 0 {
		return updates[len(updates)-1].UpdateID + 1, nil
	}

	if pendingMaxMessages > 0 && len(inWindow) > pendingMaxMessages {
		inWindow = inWindow[len(inWindow)-pendingMaxMessages:]
	}

	return inWindow[0].UpdateID, nil
}

var errCircuitOpen = errors.New("circuit open")

func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(control.KindTimeout)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "telegram ") || strings.Contains(msg, "commander"):
		return "command_source_api"
	default:
		return string(control.KindUnknown)
	}
}

func (p *Poller) pause(ctx context.Context) {
	d := p.Sleep
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Poller) event(eventType string, payload map[string]any) {
	if p.DB == nil {
		return
	}
	if _, err := db.LogEvent(p.DB, p.ParentEventID, eventType, payload); err != nil {
		p.Log.Warn().Err(err).Str("event_type", eventType).Msg("failed to log event")
	}
}
