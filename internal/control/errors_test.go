package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"timeout", Timeout("chat.stream", base), KindTimeout},
		{"upstream", Upstream("chat.stream", base), KindUpstream},
		{"presentation", Presentation("edit", base), KindPresentation},
		{"store", Store("session.load", base), KindStore},
		{"wrapped", fmt.Errorf("handle: %w", Store("session.save", base)), KindStore},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), KindTimeout},
		{"plain", base, KindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}

func TestUserReply(t *testing.T) {
	if got := UserReply(Timeout("chat.stream", context.DeadlineExceeded)); got != TimeoutReply {
		t.Fatalf("unexpected timeout reply: %q", got)
	}
	for _, err := range []error{
		Upstream("chat.stream", errors.New("401 invalid api key sk-abc")),
		Presentation("edit", errors.New("flood")),
		Store("session.load", errors.New("dial tcp 10.0.0.1:6379")),
		errors.New("anything"),
	} {
		got := UserReply(err)
		if got != GenericReply {
			t.Fatalf("unexpected reply for %v: %q", err, got)
		}
		if strings.Contains(got, "sk-abc") || strings.Contains(got, "6379") {
			t.Fatalf("reply leaks detail: %q", got)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Upstream("image.generate", base)
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to reach the wrapped error")
	}
	if !strings.Contains(err.Error(), "image.generate") {
		t.Fatalf("expected op in message, got %q", err.Error())
	}
}
