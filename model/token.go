// file: model/token.go

package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one link of a rotation chain. Every successful refresh
// revokes the current link and stamps ReplacedByID with its successor, so the
// chain records the full history of a session. The raw token value is never
// stored; only its SHA-256 hash is persisted.
type RefreshToken struct {
	ID           uuid.UUID  `json:"id"`
	UserID       int        `json:"user_id"`
	TokenHash    string     `json:"-"` // The hash is not exposed in JSON responses.
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Revoked      bool       `json:"revoked"`
	ReplacedByID *uuid.UUID `json:"replaced_by_id,omitempty"`
	DeviceInfo   string     `json:"device_info,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
}

// IsExpired reports whether the token's lifetime has elapsed.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// SessionMetadata carries the device descriptor and network address captured
// when a credential is issued or rotated.
type SessionMetadata struct {
	DeviceInfo string
	IPAddress  string
}
