// Package session holds per-user dialogue transcripts and the stores that
// persist them between turns.
package session

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one dialogue message. It is never modified after being appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered dialogue of one user, replayed verbatim to the model.
type Transcript []Turn

// NewTranscript starts a session transcript with a single system turn.
func NewTranscript(systemPrompt string) Transcript {
	return Transcript{{Role: RoleSystem, Content: systemPrompt}}
}

// Append returns a copy of t with turns added; t itself is left untouched.
func (t Transcript) Append(turns ...Turn) Transcript {
	out := make(Transcript, 0, len(t)+len(turns))
	out = append(out, t...)
	return append(out, turns...)
}

// Encode serializes a transcript to the blob stored in the cache.
func Encode(t Transcript) ([]byte, error) {
	if t == nil {
		t = Transcript{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return data, nil
}

// Decode parses a cache blob back into a transcript.
func Decode(data []byte) (Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	for i, turn := range t {
		switch turn.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return nil, fmt.Errorf("decode transcript: turn %d has unknown role %q", i, turn.Role)
		}
	}
	return t, nil
}
