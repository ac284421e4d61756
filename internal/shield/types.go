package shield

import (
	"context"
	"errors"
	"time"

	"github.com/raaihank/flowpaste/internal/privacy"
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("shield session not found")

// Session keeps the mapping captured when outgoing text was masked, so
// the complete AI response can be restored later.
type Session struct {
	ID        string              `json:"id"`
	Provider  string              `json:"provider,omitempty"`
	Mapping   privacy.MaskMapping `json:"mapping"`
	CreatedAt time.Time           `json:"created_at"`
}

// Envelope is what the host sends upstream in place of the original text
type Envelope struct {
	SessionID string         `json:"session_id"`
	Masked    string         `json:"masked"`
	Shielded  bool           `json:"shielded"`
	Items     int            `json:"items"`
	Counts    map[string]int `json:"counts"`
}

// Store persists sessions between the mask and restore calls
type Store interface {
	Save(ctx context.Context, session *Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
