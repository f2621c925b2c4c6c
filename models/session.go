package models

import (
	"fmt"
	"time"
)

// Session groups the shots captured during one practice.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
	Notes     string    `gorm:"type:text" json:"notes"`
	// ShotCount is filled by list queries only.
	ShotCount int64 `gorm:"->;-:migration" json:"shot_count"`
}

// DefaultSessionName is used for sessions created implicitly by an upload.
func DefaultSessionName(t time.Time) string {
	return fmt.Sprintf("Session %s", t.Format("2006-01-02 15:04"))
}

func (s Session) String() string {
	return fmt.Sprintf("%s - %s", s.Name, s.CreatedAt.Format("2006-01-02 15:04"))
}
