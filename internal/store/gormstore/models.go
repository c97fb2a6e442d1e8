package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session mirrors the dashboard_sessions table.
type Session struct {
	SessionID     string    `gorm:"type:uuid;primaryKey"`
	Token         string    `gorm:"not null"`
	Email         string    `gorm:"not null;default:''"`
	Role          string    `gorm:"not null;default:''"`
	UserID        int64     `gorm:"not null;index:idx_sessions_user"`
	ProfileExists bool      `gorm:"not null;default:false"`
	ExpiresAt     time.Time `gorm:"not null;index:idx_sessions_expires"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "dashboard_sessions" }

func (session *Session) BeforeCreate(tx *gorm.DB) error {
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	return nil
}

// TransitionIntent mirrors the transition_intents table. One row per
// idempotency key; the payload keeps the request as sent to the backend.
type TransitionIntent struct {
	IntentID       string         `gorm:"type:uuid;primaryKey"`
	IdempotencyKey string         `gorm:"not null;uniqueIndex:uniq_transition_intent_key"`
	BookingID      string         `gorm:"not null;index:idx_transition_intent_booking"`
	UserID         int64          `gorm:"not null"`
	FromStatus     string         `gorm:"not null"`
	Action         string         `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (TransitionIntent) TableName() string { return "transition_intents" }

func (intent *TransitionIntent) BeforeCreate(tx *gorm.DB) error {
	if intent.IntentID == "" {
		intent.IntentID = uuid.NewString()
	}
	return nil
}

// Models lists every table managed by the store, in migration order.
func Models() []any {
	return []any{&Session{}, &TransitionIntent{}}
}
