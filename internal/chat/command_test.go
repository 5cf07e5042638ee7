package chat

import (
	"testing"

	"github.com/stupiduntilnot/streamchat/internal/images"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		cmd  string
		args []string
	}{
		{"hello there", CmdText, nil},
		{"/start", CmdStart, nil},
		{"/START@my_bot", CmdStart, nil},
		{"/image a lovely   cat", CmdImage, []string{"a", "lovely", "cat"}},
		{"/image_review@bot 4", CmdImageReview, []string{"4"}},
		{"/image_del", CmdImageDel, []string{}},
		{"/nope 1", "", nil},
	}
	for _, tc := range cases {
		cmd, args := parseCommand(tc.in)
		if cmd != tc.cmd {
			t.Errorf("parseCommand(%q) cmd=%q want %q", tc.in, cmd, tc.cmd)
			continue
		}
		if len(args) != len(tc.args) {
			t.Errorf("parseCommand(%q) args=%q want %q", tc.in, args, tc.args)
			continue
		}
		for i := range args {
			if args[i] != tc.args[i] {
				t.Errorf("parseCommand(%q) args=%q want %q", tc.in, args, tc.args)
			}
		}
	}
}

func TestParseID(t *testing.T) {
	for _, bad := range []string{"", "abc", "-1", "1.5", "+3", "٣"} {
		if _, ok := parseID(bad); ok {
			t.Errorf("parseID(%q) should fail", bad)
		}
	}
	if id, ok := parseID("42"); !ok || id != 42 {
		t.Fatalf("parseID(42)=%d,%v", id, ok)
	}
}

func TestFormatImageLog(t *testing.T) {
	got := formatImageLog([]images.Record{{ID: 1, Prompt: "cat"}, {ID: 3, Prompt: "dog"}})
	want := "Here are the image records:\n1. cat\n3. dog\n\n\nYou can use /image_review command to check an image record.\nYou can use /image_del command to delete an image record."
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}
