package session

import (
	"context"
	"strconv"
)

// Store persists one transcript per user identity. Every call is a round
// trip to the backing cache; there is no local caching layer.
type Store interface {
	// Load returns the stored transcript, or ok=false when the user has no
	// active session.
	Load(ctx context.Context, userID int64) (t Transcript, ok bool, err error)
	// Save overwrites the stored transcript. Last writer wins.
	Save(ctx context.Context, userID int64, t Transcript) error
	// Clear removes the session. Clearing an absent session is a no-op.
	Clear(ctx context.Context, userID int64) error
}

// DefaultKeyPrefix namespaces session keys in a shared cache.
const DefaultKeyPrefix = "streamchat:session:"

func sessionKey(prefix string, userID int64) string {
	return prefix + strconv.FormatInt(userID, 10)
}
