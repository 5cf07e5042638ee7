package chat

import (
	"strconv"
	"strings"

	"github.com/stupiduntilnot/streamchat/internal/images"
)

// Commands understood by the handler. Text without a leading slash is a
// chat message.
const (
	CmdText        = "text"
	CmdStart       = "start"
	CmdEnd         = "end"
	CmdHelp        = "help"
	CmdImage       = "image"
	CmdImageLog    = "image_log"
	CmdImageReview = "image_review"
	CmdImageDel    = "image_del"
)

var knownCommands = map[string]bool{
	CmdStart:       true,
	CmdEnd:         true,
	CmdHelp:        true,
	CmdImage:       true,
	CmdImageLog:    true,
	CmdImageReview: true,
	CmdImageDel:    true,
}

// parseCommand splits "/cmd@bot arg1 arg2" into "cmd" and its arguments.
// Plain text yields CmdText. Unknown commands yield "" and are ignored.
func parseCommand(text string) (string, []string) {
	if !strings.HasPrefix(text, "/") {
		return CmdText, nil
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	if !knownCommands[name] {
		return "", nil
	}
	return name, fields[1:]
}

// parseID accepts only a plain run of ASCII digits.
func parseID(arg string) (int64, bool) {
	if arg == "" {
		return 0, false
	}
	for _, r := range arg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func formatImageLog(records []images.Record) string {
	var b strings.Builder
	b.WriteString(ImageLogHeader)
	for _, r := range records {
		b.WriteString(strconv.FormatInt(r.ID, 10))
		b.WriteString(". ")
		b.WriteString(r.Prompt)
		b.WriteString("\n")
	}
	b.WriteString(ImageLogFooter)
	return b.String()
}
