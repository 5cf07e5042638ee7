package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stupiduntilnot/streamchat/internal/control"
)

var sessionsBucket = []byte("sessions")

// BoltStore keeps transcripts in an embedded bbolt file. It suits a single
// bot instance; use RedisStore when several instances share sessions.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

type boltRecord struct {
	ExpiresAt int64      `json:"expires_at,omitempty"`
	Turns     Transcript `json:"turns"`
}

// OpenBoltStore opens (or creates) the bbolt file at path, ensuring the
// parent directory exists.
func OpenBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bolt directory %s: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions bucket: %w", err)
	}
	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(ctx context.Context, userID int64) (Transcript, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, control.Store("session.load", err)
	}
	var (
		rec   boltRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(sessionKey("", userID)))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, false, control.Store("session.load", err)
	}
	if !found {
		return nil, false, nil
	}
	if rec.ExpiresAt > 0 && s.now().Unix() >= rec.ExpiresAt {
		return nil, false, nil
	}
	if rec.Turns == nil {
		rec.Turns = Transcript{}
	}
	return rec.Turns, true, nil
}

func (s *BoltStore) Save(ctx context.Context, userID int64, t Transcript) error {
	if err := ctx.Err(); err != nil {
		return control.Store("session.save", err)
	}
	rec := boltRecord{Turns: t}
	if s.ttl > 0 {
		rec.ExpiresAt = s.now().Add(s.ttl).Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return control.Store("session.save", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sessionKey("", userID)), data)
	})
	if err != nil {
		return control.Store("session.save", err)
	}
	return nil
}

func (s *BoltStore) Clear(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return control.Store("session.clear", err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionKey("", userID)))
	})
	if err != nil {
		return control.Store("session.clear", err)
	}
	return nil
}
