// Package stream folds a fragment stream into a bounded sequence of outward
// updates.
//
// Every fragment with text is appended to the accumulated answer. A
// non-final update carrying the full text so far is produced once the text
// has grown by at least Threshold characters since the last update. When
// the source is exhausted exactly one final update is produced, however
// small. An answer of length L therefore yields at most ceil(L/Threshold)
// non-final updates.
package stream

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/stupiduntilnot/streamchat/internal/model"
)

// DefaultThreshold is the minimum growth, in characters, between two
// non-final updates.
const DefaultThreshold = 40

// Update is one outward edit: the full accumulated text so far.
type Update struct {
	Text  string
	Final bool
}

// State is the per-request aggregation state. Lengths count Unicode code
// points, not bytes.
type State struct {
	Accumulated string
	Length      int
	LastEmitted int
	Finished    bool
}

// Aggregator is the ACCUMULATING -> FINISHED state machine. It never
// retries; a retry is a fresh Stream call by the caller.
type Aggregator struct {
	threshold int
	buf       strings.Builder
	state     State
}

func NewAggregator(threshold int) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Aggregator{threshold: threshold}
}

// Push appends a text delta. It returns a non-final update when the emit
// predicate holds. Pushing after Finish is a no-op.
func (a *Aggregator) Push(delta string) (Update, bool) {
	if a.state.Finished || delta == "" {
		return Update{}, false
	}
	a.buf.WriteString(delta)
	a.state.Length += utf8.RuneCountInString(delta)
	if a.state.Length-a.state.LastEmitted < a.threshold {
		return Update{}, false
	}
	a.state.Accumulated = a.buf.String()
	a.state.LastEmitted = a.state.Length
	return Update{Text: a.state.Accumulated}, true
}

// Finish moves to FINISHED and returns the final update. Calling it again
// returns the same update.
func (a *Aggregator) Finish() Update {
	a.state.Finished = true
	a.state.Accumulated = a.buf.String()
	a.state.LastEmitted = a.state.Length
	return Update{Text: a.state.Accumulated, Final: true}
}

// State returns a snapshot of the aggregation state.
func (a *Aggregator) State() State {
	s := a.state
	s.Accumulated = a.buf.String()
	return s
}

// EmitFunc applies one update outward.
type EmitFunc func(ctx context.Context, u Update) error

// Fold drains src through agg, calling emit for every non-final update,
// and returns the final update without emitting it so the caller can
// decorate it. Fragments without a delta are skipped. An emit error or a
// source error stops the fold; src is always closed.
func Fold(ctx context.Context, src model.Stream, agg *Aggregator, emit EmitFunc) (Update, error) {
	defer src.Close()
	for src.Next() {
		f := src.Current()
		if f.Delta == nil {
			continue
		}
		u, ok := agg.Push(*f.Delta)
		if !ok {
			continue
		}
		if err := emit(ctx, u); err != nil {
			return Update{}, err
		}
	}
	if err := src.Err(); err != nil {
		return Update{}, err
	}
	return agg.Finish(), nil
}
