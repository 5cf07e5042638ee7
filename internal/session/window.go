package session

// Window trims the transcript sent to the model. The leading system turn is
// always kept, followed by the most recent MaxTurns turns. MaxTurns <= 0
// sends everything. The stored transcript is never trimmed.
type Window struct {
	MaxTurns int
}

func (w Window) Apply(t Transcript) Transcript {
	if w.MaxTurns <= 0 {
		return t
	}
	var head Transcript
	rest := t
	if len(t) > 0 && t[0].Role == RoleSystem {
		head, rest = t[:1], t[1:]
	}
	if len(rest) <= w.MaxTurns {
		return t
	}
	return head.Append(rest[len(rest)-w.MaxTurns:]...)
}
