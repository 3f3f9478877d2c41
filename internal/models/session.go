package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side half of an authenticated session. The
// client holds a signed token naming this row; deleting the row kills
// the session regardless of the token's own lifetime.
type Session struct {
	BaseModel
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null"`
	User      User      `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
