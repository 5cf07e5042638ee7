package session

import (
	"context"
	"reflect"
	"testing"
)

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		got, ok, err := s.Load(ctx, 42)
		if err != nil {
			t.Fatal(err)
		}
		if ok || got != nil {
			t.Fatalf("expected no session, got ok=%v %+v", ok, got)
		}
	})

	t.Run("save is idempotent", func(t *testing.T) {
		tr := NewTranscript("sys")
		if err := s.Save(ctx, 1, tr); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, 1, tr); err != nil {
			t.Fatal(err)
		}
		got, ok, err := s.Load(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("load failed ok=%v err=%v", ok, err)
		}
		if !reflect.DeepEqual(got, tr) {
			t.Fatalf("expected %+v, got %+v", tr, got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := s.Save(ctx, 2, NewTranscript("sys")); err != nil {
			t.Fatal(err)
		}
		tr, ok, err := s.Load(ctx, 2)
		if err != nil || !ok {
			t.Fatalf("load failed ok=%v err=%v", ok, err)
		}
		user := Turn{Role: RoleUser, Content: "hi"}
		assistant := Turn{Role: RoleAssistant, Content: "hello there"}
		if err := s.Save(ctx, 2, tr.Append(user, assistant)); err != nil {
			t.Fatal(err)
		}
		got, _, err := s.Load(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[1] != user || got[2] != assistant {
			t.Fatalf("unexpected transcript after round trip: %+v", got)
		}
	})

	t.Run("users are partitioned", func(t *testing.T) {
		if err := s.Save(ctx, 3, NewTranscript("three")); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, 4, NewTranscript("four")); err != nil {
			t.Fatal(err)
		}
		got, _, _ := s.Load(ctx, 3)
		if got[0].Content != "three" {
			t.Fatalf("user 3 sees %+v", got)
		}
	})

	t.Run("last writer wins", func(t *testing.T) {
		first := NewTranscript("sys").Append(Turn{Role: RoleUser, Content: "first"})
		second := NewTranscript("sys").Append(Turn{Role: RoleUser, Content: "second"})
		_ = s.Save(ctx, 5, first)
		_ = s.Save(ctx, 5, second)
		got, _, _ := s.Load(ctx, 5)
		if got[1].Content != "second" {
			t.Fatalf("expected later save to win, got %+v", got)
		}
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		if err := s.Save(ctx, 6, NewTranscript("sys")); err != nil {
			t.Fatal(err)
		}
		if err := s.Clear(ctx, 6); err != nil {
			t.Fatal(err)
		}
		if err := s.Clear(ctx, 6); err != nil {
			t.Fatalf("second clear failed: %v", err)
		}
		if _, ok, _ := s.Load(ctx, 6); ok {
			t.Fatal("expected session to be gone")
		}
		if err := s.Clear(ctx, 999); err != nil {
			t.Fatalf("clear of absent session failed: %v", err)
		}
	})
}
