package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
)

func TestGetUpdates_ParsesMessages(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getUpdates" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"ok":true,"result":[{"update_id":11,"message":{"message_id":5,"from":{"id":42,"username":"ann"},"chat":{"id":123},"date":1700000000,"text":"hello"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	updates, err := c.GetUpdates(context.Background(), 7, 30)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 1 || updates[0].Message == nil || updates[0].Message.Text == nil {
		t.Fatalf("unexpected updates: %#v", updates)
	}
	m := updates[0].Message
	if *m.Text != "hello" || m.UserID() != 42 || m.Chat.ID != 123 || m.MessageID != 5 {
		t.Fatalf("unexpected message: %#v", m)
	}
	if !strings.Contains(gotQuery, "offset=7") || !strings.Contains(gotQuery, "timeout=30") {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
}

func TestSendMessage_ReturnsMessageID(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendMessage" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":99,"chat":{"id":1},"date":1}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	id, err := c.SendMessage(context.Background(), 1, "...")
	if err != nil {
		t.Fatal(err)
	}
	if id != 99 {
		t.Fatalf("expected message id 99, got %d", id)
	}
	if got["text"] != "..." {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestEditMessageText_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same as a current content and reply markup of the message"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	err := c.EditMessageText(context.Background(), 1, 2, "same")
	if !errors.Is(err, cmdpkg.ErrNotModified) {
		t.Fatalf("expected ErrNotModified, got %v", err)
	}
}

func TestEditMessageText_OtherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	err := c.EditMessageText(context.Background(), 1, 2, "text")
	if err == nil || errors.Is(err, cmdpkg.ErrNotModified) {
		t.Fatalf("expected plain API error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 429 {
		t.Fatalf("expected APIError code 429, got %v", err)
	}
}

func TestEditMessageText_TruncatesLongText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	if err := c.EditMessageText(context.Background(), 1, 2, strings.Repeat("漢", MaxMessageChars+10)); err != nil {
		t.Fatal(err)
	}
	text, _ := got["text"].(string)
	if n := len([]rune(text)); n != MaxMessageChars {
		t.Fatalf("expected %d runes, got %d", MaxMessageChars, n)
	}
}

func TestSendChatAction(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendChatAction" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	if err := c.SendChatAction(context.Background(), 5, cmdpkg.ActionTyping); err != nil {
		t.Fatal(err)
	}
	if got["action"] != "typing" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestSendPhoto_Multipart(t *testing.T) {
	var (
		gotCaption string
		gotChat    string
		gotPhoto   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendPhoto" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotCaption = r.FormValue("caption")
		gotChat = r.FormValue("chat_id")
		f, _, err := r.FormFile("photo")
		if err == nil {
			gotPhoto, _ = io.ReadAll(f)
			f.Close()
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":3}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	if err := c.SendPhoto(context.Background(), 77, []byte("jpegbytes"), "here"); err != nil {
		t.Fatal(err)
	}
	if gotChat != "77" || gotCaption != "here" || string(gotPhoto) != "jpegbytes" {
		t.Fatalf("unexpected upload chat=%q caption=%q photo=%q", gotChat, gotCaption, gotPhoto)
	}
}

func TestGetUpdates_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.GetUpdates(ctx, 0, 30); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
