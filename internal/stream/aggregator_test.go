package stream

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stupiduntilnot/streamchat/internal/model"
)

func fragments(parts ...string) []model.Fragment {
	out := make([]model.Fragment, 0, len(parts))
	for _, p := range parts {
		out = append(out, model.Text(p))
	}
	return out
}

type recorder struct {
	updates []Update
}

func (r *recorder) emit(_ context.Context, u Update) error {
	r.updates = append(r.updates, u)
	return nil
}

func fold(t *testing.T, frags []model.Fragment) ([]Update, Update) {
	t.Helper()
	var rec recorder
	final, err := Fold(context.Background(), &model.SliceStream{Fragments: frags}, NewAggregator(DefaultThreshold), rec.emit)
	if err != nil {
		t.Fatal(err)
	}
	return rec.updates, final
}

func TestFold_SmallAnswerOnlyFinal(t *testing.T) {
	updates, final := fold(t, fragments("Hel", "lo ", "world"))
	if len(updates) != 0 {
		t.Fatalf("expected no non-final updates, got %+v", updates)
	}
	if !final.Final || final.Text != "Hello world" {
		t.Fatalf("unexpected final update: %+v", final)
	}
}

func TestFold_OneLargeFragment(t *testing.T) {
	text := strings.Repeat("A", 50)
	updates, final := fold(t, fragments(text))
	if len(updates) != 1 || updates[0].Text != text || updates[0].Final {
		t.Fatalf("expected one non-final update of 50 chars, got %+v", updates)
	}
	if final.Text != text {
		t.Fatalf("expected final identical to last update, got %q", final.Text)
	}
}

func TestFold_EmptyStream(t *testing.T) {
	updates, final := fold(t, nil)
	if len(updates) != 0 {
		t.Fatalf("expected no updates, got %+v", updates)
	}
	if !final.Final || final.Text != "" {
		t.Fatalf("expected empty final update, got %+v", final)
	}
}

func TestFold_SkipsTextlessFragments(t *testing.T) {
	frags := []model.Fragment{{}, model.Text("a"), {}, model.Text(""), model.Text("b"), {}}
	updates, final := fold(t, frags)
	if len(updates) != 0 || final.Text != "ab" {
		t.Fatalf("unexpected result updates=%+v final=%+v", updates, final)
	}
}

func TestFold_ThresholdBoundary(t *testing.T) {
	updates, _ := fold(t, fragments(strings.Repeat("x", 39), "y"))
	if len(updates) != 1 || utf8.RuneCountInString(updates[0].Text) != 40 {
		t.Fatalf("expected emit exactly at 40 chars, got %+v", updates)
	}
}

func TestFold_CountsCodePoints(t *testing.T) {
	// 39 multi-byte characters stay below the threshold even though they
	// are well over 40 bytes.
	updates, final := fold(t, fragments(strings.Repeat("é", 39)))
	if len(updates) != 0 {
		t.Fatalf("expected no update below 40 code points, got %d", len(updates))
	}
	if final.Text != strings.Repeat("é", 39) {
		t.Fatalf("unexpected final %q", final.Text)
	}
}

// Randomized check of completeness and the threshold invariant.
func TestFold_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := []rune("abcdefghij klmnopé漢")
	for iter := 0; iter < 300; iter++ {
		var frags []model.Fragment
		var want strings.Builder
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			if rng.Intn(5) == 0 {
				frags = append(frags, model.Fragment{})
				continue
			}
			size := rng.Intn(30)
			var part strings.Builder
			for j := 0; j < size; j++ {
				part.WriteRune(alphabet[rng.Intn(len(alphabet))])
			}
			want.WriteString(part.String())
			frags = append(frags, model.Text(part.String()))
		}

		updates, final := fold(t, frags)
		if final.Text != want.String() {
			t.Fatalf("iter %d: final %q != concatenation %q", iter, final.Text, want.String())
		}
		finalLen := utf8.RuneCountInString(final.Text)
		maxUpdates := (finalLen + DefaultThreshold - 1) / DefaultThreshold
		if len(updates) > maxUpdates {
			t.Fatalf("iter %d: %d updates exceed ceil(%d/40)", iter, len(updates), finalLen)
		}
		prev := 0
		for _, u := range updates {
			l := utf8.RuneCountInString(u.Text)
			if l-prev < DefaultThreshold {
				t.Fatalf("iter %d: update grew by %d < 40", iter, l-prev)
			}
			if !strings.HasPrefix(final.Text, u.Text) {
				t.Fatalf("iter %d: update is not a prefix of the final text", iter)
			}
			prev = l
		}
	}
}

func TestFold_EmitErrorStops(t *testing.T) {
	boom := errors.New("edit failed")
	calls := 0
	src := &model.SliceStream{Fragments: fragments(strings.Repeat("a", 40), strings.Repeat("b", 40))}
	_, err := Fold(context.Background(), src, NewAggregator(0), func(context.Context, Update) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected fold to stop after first failed emit, got %d calls", calls)
	}
}

func TestFold_SourceError(t *testing.T) {
	boom := errors.New("stream broke")
	src := &model.SliceStream{Fragments: fragments("abc"), Fail: boom}
	_, err := Fold(context.Background(), src, NewAggregator(0), func(context.Context, Update) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestAggregator_FinishIsTerminal(t *testing.T) {
	a := NewAggregator(5)
	a.Push("abc")
	first := a.Finish()
	if _, ok := a.Push(strings.Repeat("z", 10)); ok {
		t.Fatal("push after finish must not emit")
	}
	if second := a.Finish(); second != first {
		t.Fatalf("finish not stable: %+v vs %+v", first, second)
	}
	st := a.State()
	if !st.Finished || st.Accumulated != "abc" || st.LastEmitted != 3 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestAggregator_CustomThreshold(t *testing.T) {
	a := NewAggregator(3)
	if _, ok := a.Push("ab"); ok {
		t.Fatal("unexpected emit below threshold")
	}
	u, ok := a.Push("c")
	if !ok || u.Text != "abc" {
		t.Fatalf("expected emit at 3, got %+v ok=%v", u, ok)
	}
	if _, ok := a.Push("de"); ok {
		t.Fatal("growth of 2 must not emit")
	}
}
