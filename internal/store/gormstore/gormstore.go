package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/session"
	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintTransitionIntentKey = "uniq_transition_intent_key"
	pgUniqueViolationCode         = "23505"
	sqliteConstraintCode          = 19
	errorOperationStore           = "store"
	errorSubjectIntent            = "intent"
	errorSubjectSession           = "session"
	errorCodeDelete               = "delete"
	errorCodeDuplicate            = "duplicate"
	errorCodeEncode               = "encode"
	errorCodeGet                  = "get"
	errorCodeInsert               = "insert"
	errorCodeList                 = "list"
	errorCodeSave                 = "save"
)

// Store implements dashboard.IntentStore and session.Store using GORM.
type Store struct {
	db *gorm.DB
}

var (
	_ dashboard.IntentStore = (*Store)(nil)
	_ session.Store         = (*Store)(nil)
)

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the store's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore dashboard.IntentStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

type intentPayload struct {
	BookingID      string `json:"booking_id"`
	From           string `json:"from"`
	Action         string `json:"action"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RecordIntent inserts a transition intent, returning
// dashboard.ErrDuplicateIdempotencyKey when its key was already recorded.
func (store *Store) RecordIntent(ctx context.Context, intent dashboard.TransitionIntent) error {
	payload, err := json.Marshal(intentPayload{
		BookingID:      intent.BookingID,
		From:           intent.From.String(),
		Action:         intent.Action.String(),
		IdempotencyKey: intent.IdempotencyKey.String(),
	})
	if err != nil {
		return wrapStoreError(errorSubjectIntent, errorCodeEncode, err)
	}
	row := TransitionIntent{
		IdempotencyKey: intent.IdempotencyKey.String(),
		BookingID:      intent.BookingID,
		UserID:         intent.UserID,
		FromStatus:     intent.From.String(),
		Action:         intent.Action.String(),
		Payload:        datatypes.JSON(payload),
		CreatedAt:      time.Unix(intent.CreatedUnixUTC, 0).UTC(),
	}
	if intent.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isIdempotencyConflict(err) {
		return wrapStoreError(errorSubjectIntent, errorCodeDuplicate, dashboard.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectIntent, errorCodeInsert, err)
	}
	return nil
}

// ListIntents returns the recorded intents for a booking, oldest first.
func (store *Store) ListIntents(ctx context.Context, bookingID string) ([]dashboard.TransitionIntent, error) {
	var rows []TransitionIntent
	err := store.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at asc").
		Order("idempotency_key asc").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
	}
	intents := make([]dashboard.TransitionIntent, 0, len(rows))
	for _, row := range rows {
		key, err := dashboard.NewIdempotencyKey(row.IdempotencyKey)
		if err != nil {
			return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
		}
		intents = append(intents, dashboard.TransitionIntent{
			IdempotencyKey: key,
			BookingID:      row.BookingID,
			UserID:         row.UserID,
			From:           dashboard.BookingStatus(row.FromStatus),
			Action:         dashboard.Action(row.Action),
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return intents, nil
}

// SaveSession inserts or replaces a session.
func (store *Store) SaveSession(ctx context.Context, value dashboard.Session) error {
	row := Session{
		SessionID:     value.ID,
		Token:         value.Token,
		Email:         value.Email,
		Role:          value.Role,
		UserID:        value.UserID,
		ProfileExists: value.ProfileExists,
		ExpiresAt:     value.ExpiresAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "email", "role", "user_id", "profile_exists", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeSave, err)
	}
	return nil
}

// LoadSession returns session.ErrSessionNotFound for unknown ids.
func (store *Store) LoadSession(ctx context.Context, id string) (dashboard.Session, error) {
	var row Session
	err := store.db.WithContext(ctx).Where("session_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dashboard.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, session.ErrSessionNotFound)
	}
	if err != nil {
		return dashboard.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapSession(row), nil
}

// ListSessions returns every persisted session.
func (store *Store) ListSessions(ctx context.Context) ([]dashboard.Session, error) {
	var rows []Session
	if err := store.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	sessions := make([]dashboard.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, mapSession(row))
	}
	return sessions, nil
}

// DeleteSession removes a session; unknown ids are not an error.
func (store *Store) DeleteSession(ctx context.Context, id string) error {
	if err := store.db.WithContext(ctx).Where("session_id = ?", id).Delete(&Session{}).Error; err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeDelete, err)
	}
	return nil
}

func mapSession(row Session) dashboard.Session {
	return dashboard.Session{
		ID:            row.SessionID,
		Token:         row.Token,
		Email:         row.Email,
		Role:          row.Role,
		UserID:        row.UserID,
		ProfileExists: row.ProfileExists,
		ExpiresAt:     row.ExpiresAt.UTC(),
	}
}

func wrapStoreError(subject string, code string, err error) error {
	return dashboard.WrapError(errorOperationStore, subject, code, err)
}

func isIdempotencyConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintTransitionIntentKey
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
