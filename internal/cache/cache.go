// Package cache stores finished generation results: the last completed model per
// session and the terminal snapshot per task.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"virtufit-backend/internal/relay"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: not found")

// Entry is the last completed result for one session.
type Entry struct {
	SessionID    string    `json:"sessionId"`
	TaskID       string    `json:"taskId"`
	ImageHash    string    `json:"imageHash"`
	ModelURL     string    `json:"modelUrl"`
	SourceURL    string    `json:"sourceUrl,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Store is implemented by the Redis and in-memory caches.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*Entry, error)
	PutSession(ctx context.Context, entry *Entry) error
	// GetTask returns the stored terminal snapshot for taskID.
	GetTask(ctx context.Context, taskID string) (*relay.Snapshot, error)
	// PutTask stores a terminal snapshot. Non-terminal snapshots are ignored and
	// an existing terminal snapshot is never replaced.
	PutTask(ctx context.Context, snap *relay.Snapshot) error
	Ping(ctx context.Context) error
	Close() error
}

// HashImage identifies an image by content, or by URL for URL inputs.
func HashImage(img relay.Image) string {
	h := sha256.New()
	if img.IsURL() {
		h.Write([]byte("url:"))
		h.Write([]byte(img.URL))
	} else {
		h.Write(img.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sessionKey(prefix, sessionID string) string {
	return prefix + "session:" + sessionID
}

func taskKey(prefix, taskID string) string {
	return prefix + "task:" + taskID
}
