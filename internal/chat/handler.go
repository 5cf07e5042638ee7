// Package chat turns inbound messages into replies. Handler.Handle is the
// single failure boundary for one update; Poller feeds it from the
// transport.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
	"github.com/stupiduntilnot/streamchat/internal/control"
	"github.com/stupiduntilnot/streamchat/internal/db"
	"github.com/stupiduntilnot/streamchat/internal/images"
	"github.com/stupiduntilnot/streamchat/internal/metrics"
	"github.com/stupiduntilnot/streamchat/internal/model"
	"github.com/stupiduntilnot/streamchat/internal/presenter"
	"github.com/stupiduntilnot/streamchat/internal/session"
	"github.com/stupiduntilnot/streamchat/internal/stream"
)

// replyTimeout bounds the failure reply, which runs detached from the
// request context.
const replyTimeout = 10 * time.Second

// Deps wires a Handler. Commander, Provider and Store are required.
type Deps struct {
	Commander cmdpkg.Commander
	Provider  model.Provider
	Store     session.Store

	// Images serves the image commands; nil disables them.
	Images *images.Pipeline
	// Locker serializes same-user requests; nil keeps last-writer-wins.
	Locker *session.Locker
	Window session.Window

	SystemPrompt  string
	EmitThreshold int
	EditPace      time.Duration
	ChatTimeout   time.Duration

	// DB receives audit events under ParentEventID; nil disables them.
	DB            *sql.DB
	ParentEventID *int64

	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Handler handles one update at a time and is safe for concurrent use.
type Handler struct {
	deps     Deps
	provider model.Provider
	log      zerolog.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.SystemPrompt == "" {
		deps.SystemPrompt = "You are a helpful chatbot"
	}
	if deps.EmitThreshold <= 0 {
		deps.EmitThreshold = stream.DefaultThreshold
	}
	if deps.EditPace <= 0 {
		deps.EditPace = presenter.DefaultPace
	}
	if deps.ChatTimeout <= 0 {
		deps.ChatTimeout = model.DefaultChatTimeout
	}
	return &Handler{
		deps:     deps,
		provider: model.WithTimeout(deps.Provider, deps.ChatTimeout),
		log:      deps.Log.With().Str("component", "chat").Logger(),
	}
}

// repliedError marks a failure the command already answered in place.
type repliedError struct{ err error }

func (e *repliedError) Error() string { return e.err.Error() }
func (e *repliedError) Unwrap() error { return e.err }

func replied(err error) error { return &repliedError{err: err} }

// Handle processes one inbound message. Every failure, including a panic,
// is logged with full detail and answered with one of the two generic
// replies. The returned error is for bookkeeping only; it has already been
// reported to the user.
func (h *Handler) Handle(ctx context.Context, msg *cmdpkg.Message) (err error) {
	if msg == nil || msg.Text == nil || strings.TrimSpace(*msg.Text) == "" {
		return nil
	}
	text := *msg.Text
	cmd, args := parseCommand(text)
	if cmd == "" {
		return nil
	}

	start := time.Now()
	log := h.log.With().Int64("user_id", msg.UserID()).Int64("chat_id", msg.Chat.ID).Str("command", cmd).Logger()
	done := h.deps.Metrics.TrackInFlight()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
		done()
		latency := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = string(control.KindOf(err))
			log.Error().Err(err).Str("kind", outcome).Dur("latency", latency).Msg("request failed")
			var r *repliedError
			if !errors.As(err, &r) {
				h.replyDetached(ctx, msg.Chat.ID, control.UserReply(err), log)
			}
		} else {
			log.Info().Dur("latency", latency).Msg("request completed")
		}
		h.deps.Metrics.RecordRequest(cmd, outcome, latency)
	}()

	switch cmd {
	case CmdText:
		return h.handleText(ctx, msg, text, log)
	case CmdStart:
		return h.handleStart(ctx, msg)
	case CmdEnd:
		return h.handleEnd(ctx, msg)
	case CmdHelp:
		return h.reply(ctx, msg.Chat.ID, HelpText)
	case CmdImage:
		return h.handleImage(ctx, msg, args, log)
	case CmdImageLog:
		return h.handleImageLog(ctx, msg)
	case CmdImageReview:
		return h.handleImageReview(ctx, msg, args)
	case CmdImageDel:
		return h.handleImageDel(ctx, msg, args)
	}
	return nil
}

// handleText streams the model answer into a placeholder message.
//
// Without a session the request is a single ephemeral user turn and nothing
// is stored. With one, the user turn and the raw answer are appended and
// saved before the final edit, which alone carries the disclaimer.
func (h *Handler) handleText(ctx context.Context, msg *cmdpkg.Message, text string, log zerolog.Logger) error {
	userID, chatID := msg.UserID(), msg.Chat.ID

	replyEvent := h.event(h.deps.ParentEventID, db.EventReplyStarted, map[string]any{
		"user_id": userID,
		"chat_id": chatID,
		"chars":   len([]rune(text)),
	})

	err := h.streamReply(ctx, userID, chatID, text, log)
	if err != nil {
		h.event(replyEvent, db.EventReplyFailed, map[string]any{
			"kind":  string(control.KindOf(err)),
			"error": truncate(err.Error(), 1000),
		})
		return err
	}
	h.event(replyEvent, db.EventReplyCompleted, nil)
	return nil
}

func (h *Handler) streamReply(ctx context.Context, userID, chatID int64, text string, log zerolog.Logger) error {
	placeholderID, err := h.deps.Commander.SendMessage(ctx, chatID, Placeholder)
	if err != nil {
		return control.Presentation("chat.placeholder", err)
	}
	if err := h.deps.Commander.SendChatAction(ctx, chatID, cmdpkg.ActionTyping); err != nil {
		log.Warn().Err(err).Msg("typing indicator failed")
	}

	if h.deps.Locker != nil {
		unlock := h.deps.Locker.Lock(userID)
		defer unlock()
	}

	transcript, contextful, err := h.deps.Store.Load(ctx, userID)
	if err != nil {
		return err
	}
	userTurn := session.Turn{Role: session.RoleUser, Content: text}
	var turns []session.Turn
	if contextful {
		transcript = transcript.Append(userTurn)
		turns = h.deps.Window.Apply(transcript)
	} else {
		turns = []session.Turn{userTurn}
	}
	log.Debug().Bool("contextful", contextful).Int("turns", len(turns)).Msg("requesting completion")

	pres := presenter.New(h.deps.Commander, chatID, placeholderID, h.deps.EditPace)
	pres.Metrics = h.deps.Metrics
	pres.Log = log

	streamStart := time.Now()
	src, err := h.provider.Stream(ctx, turns)
	if err != nil {
		h.deps.Metrics.ObserveModelStream(string(control.KindOf(err)), time.Since(streamStart))
		return err
	}
	final, err := stream.Fold(ctx, src, stream.NewAggregator(h.deps.EmitThreshold), pres.Emit())
	if err != nil {
		h.deps.Metrics.ObserveModelStream(string(control.KindOf(err)), time.Since(streamStart))
		return err
	}
	h.deps.Metrics.ObserveModelStream("ok", time.Since(streamStart))

	if contextful {
		transcript = transcript.Append(session.Turn{Role: session.RoleAssistant, Content: final.Text})
		if err := h.deps.Store.Save(ctx, userID, transcript); err != nil {
			return err
		}
		final.Text += Disclaimer
	}
	return pres.Apply(ctx, final)
}

func (h *Handler) handleStart(ctx context.Context, msg *cmdpkg.Message) error {
	userID := msg.UserID()
	if err := h.deps.Store.Save(ctx, userID, session.NewTranscript(h.deps.SystemPrompt)); err != nil {
		return err
	}
	h.event(h.deps.ParentEventID, db.EventSessionStarted, map[string]any{"user_id": userID})
	return h.reply(ctx, msg.Chat.ID, StartReply)
}

func (h *Handler) handleEnd(ctx context.Context, msg *cmdpkg.Message) error {
	userID := msg.UserID()
	if err := h.deps.Store.Clear(ctx, userID); err != nil {
		return err
	}
	h.event(h.deps.ParentEventID, db.EventSessionEnded, map[string]any{"user_id": userID})
	return h.reply(ctx, msg.Chat.ID, EndReply)
}

func (h *Handler) handleImage(ctx context.Context, msg *cmdpkg.Message, args []string, log zerolog.Logger) error {
	chatID := msg.Chat.ID
	if len(args) == 0 {
		return h.reply(ctx, chatID, ImagePromptMissing)
	}
	if h.deps.Images == nil {
		return h.reply(ctx, chatID, ImagesDisabled)
	}
	prompt := strings.Join(args, " ")
	log.Info().Str("prompt", truncate(prompt, 200)).Msg("generating image")

	if err := h.deps.Commander.SendChatAction(ctx, chatID, cmdpkg.ActionUploadPhoto); err != nil {
		log.Warn().Err(err).Msg("upload indicator failed")
	}
	rec, data, err := h.deps.Images.Generate(ctx, prompt)
	if err != nil {
		h.event(h.deps.ParentEventID, db.EventImageFailed, map[string]any{
			"user_id": msg.UserID(),
			"kind":    string(control.KindOf(err)),
		})
		return err
	}
	h.event(h.deps.ParentEventID, db.EventImageGenerated, map[string]any{
		"user_id":  msg.UserID(),
		"image_id": rec.ID,
		"filename": rec.Filename,
	})
	if err := h.deps.Commander.SendPhoto(ctx, chatID, data, ImageCaption); err != nil {
		return control.Presentation("chat.send_photo", err)
	}
	return nil
}

func (h *Handler) handleImageLog(ctx context.Context, msg *cmdpkg.Message) error {
	if h.deps.Images == nil {
		return h.reply(ctx, msg.Chat.ID, ImagesDisabled)
	}
	records, err := h.deps.Images.List(ctx)
	if err != nil {
		return h.replyFailure(ctx, msg.Chat.ID, DatabaseFailed, err)
	}
	return h.reply(ctx, msg.Chat.ID, formatImageLog(records))
}

func (h *Handler) handleImageReview(ctx context.Context, msg *cmdpkg.Message, args []string) error {
	chatID := msg.Chat.ID
	if len(args) == 0 {
		return h.reply(ctx, chatID, ReviewMissingID)
	}
	id, ok := parseID(args[0])
	if !ok {
		return h.reply(ctx, chatID, ReviewBadID)
	}
	if h.deps.Images == nil {
		return h.reply(ctx, chatID, ImagesDisabled)
	}
	_, data, found, err := h.deps.Images.Review(ctx, id)
	if err != nil {
		return h.replyFailure(ctx, chatID, DatabaseFailed, err)
	}
	if !found {
		return h.reply(ctx, chatID, RecordNotFound)
	}
	if err := h.deps.Commander.SendPhoto(ctx, chatID, data, ReviewCaption); err != nil {
		return control.Presentation("chat.send_photo", err)
	}
	return nil
}

func (h *Handler) handleImageDel(ctx context.Context, msg *cmdpkg.Message, args []string) error {
	chatID := msg.Chat.ID
	if len(args) == 0 {
		return h.reply(ctx, chatID, DeleteBadID)
	}
	id, ok := parseID(args[0])
	if !ok {
		return h.reply(ctx, chatID, DeleteBadID)
	}
	if h.deps.Images == nil {
		return h.reply(ctx, chatID, ImagesDisabled)
	}
	deleted, err := h.deps.Images.Delete(ctx, id)
	if err != nil {
		return h.replyFailure(ctx, chatID, DeleteFailed, err)
	}
	if !deleted {
		return h.reply(ctx, chatID, RecordNotFound)
	}
	h.event(h.deps.ParentEventID, db.EventImageDeleted, map[string]any{
		"user_id":  msg.UserID(),
		"image_id": id,
	})
	return h.reply(ctx, chatID, DeleteOK)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) error {
	if _, err := h.deps.Commander.SendMessage(ctx, chatID, text); err != nil {
		return control.Presentation("chat.reply", err)
	}
	return nil
}

// replyFailure answers a failed command with its own message and returns
// the cause marked as already answered.
func (h *Handler) replyFailure(ctx context.Context, chatID int64, text string, cause error) error {
	if err := h.reply(ctx, chatID, text); err != nil {
		return errors.Join(cause, err)
	}
	return replied(cause)
}

// replyDetached sends the generic failure reply even when ctx is already
// cancelled or past its deadline.
func (h *Handler) replyDetached(ctx context.Context, chatID int64, text string, log zerolog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if _, err := h.deps.Commander.SendMessage(rctx, chatID, text); err != nil {
		log.Error().Err(err).Msg("failed to send failure reply")
	}
}

// event records an audit event and returns its id, or nil when auditing
// is off or the insert failed.
func (h *Handler) event(parentID *int64, eventType string, payload map[string]any) *int64 {
	if h.deps.DB == nil {
		return nil
	}
	id, err := db.LogEvent(h.deps.DB, parentID, eventType, payload)
	if err != nil {
		h.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to log event")
		return nil
	}
	return &id
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
