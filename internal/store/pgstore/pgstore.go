// Package pgstore persists transition intents and sessions with pgx directly.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/session"
	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintTransitionIntentKey = "uniq_transition_intent_key"
	pgUniqueViolationCode         = "23505"
	errorOperationStore           = "store"
	errorSubjectIntent            = "intent"
	errorSubjectSchema            = "schema"
	errorSubjectSession           = "session"
	errorSubjectTransaction       = "transaction"
	errorCodeBegin                = "begin"
	errorCodeCommit               = "commit"
	errorCodeCreate               = "create"
	errorCodeDelete               = "delete"
	errorCodeDuplicate            = "duplicate"
	errorCodeGet                  = "get"
	errorCodeInsert               = "insert"
	errorCodeList                 = "list"
	errorCodeSave                 = "save"

	sqlCreateSchema = `
		create table if not exists dashboard_sessions (
			session_id uuid primary key,
			token text not null,
			email text not null default '',
			role text not null default '',
			user_id bigint not null,
			profile_exists boolean not null default false,
			expires_at timestamptz not null,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		);
		create index if not exists idx_sessions_user on dashboard_sessions(user_id);
		create index if not exists idx_sessions_expires on dashboard_sessions(expires_at);
		create table if not exists transition_intents (
			intent_id uuid primary key default gen_random_uuid(),
			idempotency_key text not null,
			booking_id text not null,
			user_id bigint not null,
			from_status text not null,
			action text not null,
			payload jsonb not null default '{}'::jsonb,
			created_at timestamptz not null,
			constraint uniq_transition_intent_key unique (idempotency_key)
		);
		create index if not exists idx_transition_intent_booking on transition_intents(booking_id);
	`

	sqlInsertIntent = `
		insert into transition_intents(idempotency_key, booking_id, user_id, from_status, action, payload, created_at)
		values (
			$1, $2, $3, $4, $5,
			jsonb_build_object('booking_id', $2::text, 'from', $4::text, 'action', $5::text, 'idempotency_key', $1::text),
			to_timestamp($6)
		)
	`

	sqlListIntents = `
		select idempotency_key, booking_id, user_id, from_status, action, extract(epoch from created_at)::bigint
		from transition_intents
		where booking_id = $1
		order by created_at asc, idempotency_key asc
	`

	sqlUpsertSession = `
		insert into dashboard_sessions(session_id, token, email, role, user_id, profile_exists, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (session_id) do update set
			token = excluded.token,
			email = excluded.email,
			role = excluded.role,
			user_id = excluded.user_id,
			profile_exists = excluded.profile_exists,
			expires_at = excluded.expires_at,
			updated_at = now()
	`

	sqlSelectSession = `
		select session_id::text, token, email, role, user_id, profile_exists, expires_at
		from dashboard_sessions
		where session_id = $1
	`

	sqlListSessions = `
		select session_id::text, token, email, role, user_id, profile_exists, expires_at
		from dashboard_sessions
		order by created_at asc
	`

	sqlDeleteSession = `delete from dashboard_sessions where session_id = $1`
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements dashboard.IntentStore and session.Store using a pgx pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// TxStore implements dashboard.IntentStore for an active transaction.
type TxStore struct {
	tx pgx.Tx
}

var (
	_ dashboard.IntentStore = (*Store)(nil)
	_ dashboard.IntentStore = (*TxStore)(nil)
	_ session.Store         = (*Store)(nil)
)

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// EnsureSchema creates the store's tables when they are missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.db.Exec(ctx, sqlCreateSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore dashboard.IntentStore) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, &TxStore{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) RecordIntent(ctx context.Context, intent dashboard.TransitionIntent) error {
	return recordIntent(ctx, store.db, intent)
}

// ListIntents returns the recorded intents for a booking, oldest first.
func (store *Store) ListIntents(ctx context.Context, bookingID string) ([]dashboard.TransitionIntent, error) {
	return listIntents(ctx, store.db, bookingID)
}

func listIntents(ctx context.Context, db querier, bookingID string) ([]dashboard.TransitionIntent, error) {
	rows, err := db.Query(ctx, sqlListIntents, bookingID)
	if err != nil {
		return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
	}
	defer rows.Close()
	intents := make([]dashboard.TransitionIntent, 0)
	for rows.Next() {
		var (
			keyValue, bookingValue, fromValue, actionValue string
			userID, createdUnixUTC                         int64
		)
		if err := rows.Scan(&keyValue, &bookingValue, &userID, &fromValue, &actionValue, &createdUnixUTC); err != nil {
			return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
		}
		key, err := dashboard.NewIdempotencyKey(keyValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
		}
		intents = append(intents, dashboard.TransitionIntent{
			IdempotencyKey: key,
			BookingID:      bookingValue,
			UserID:         userID,
			From:           dashboard.BookingStatus(fromValue),
			Action:         dashboard.Action(actionValue),
			CreatedUnixUTC: createdUnixUTC,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectIntent, errorCodeList, err)
	}
	return intents, nil
}

func (store *Store) SaveSession(ctx context.Context, value dashboard.Session) error {
	_, err := store.db.Exec(ctx, sqlUpsertSession,
		value.ID,
		value.Token,
		value.Email,
		value.Role,
		value.UserID,
		value.ProfileExists,
		value.ExpiresAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeSave, err)
	}
	return nil
}

func (store *Store) LoadSession(ctx context.Context, id string) (dashboard.Session, error) {
	loaded, err := scanSession(store.db.QueryRow(ctx, sqlSelectSession, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dashboard.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, session.ErrSessionNotFound)
	}
	if err != nil {
		return dashboard.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return loaded, nil
}

func (store *Store) ListSessions(ctx context.Context) ([]dashboard.Session, error) {
	rows, err := store.db.Query(ctx, sqlListSessions)
	if err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	defer rows.Close()
	var sessions []dashboard.Session
	for rows.Next() {
		loaded, err := scanSession(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
		}
		sessions = append(sessions, loaded)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	return sessions, nil
}

func (store *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := store.db.Exec(ctx, sqlDeleteSession, id); err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeDelete, err)
	}
	return nil
}

// WithTx joins the active transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore dashboard.IntentStore) error) error {
	return fn(ctx, store)
}

func (store *TxStore) RecordIntent(ctx context.Context, intent dashboard.TransitionIntent) error {
	return recordIntent(ctx, store.tx, intent)
}

func (store *TxStore) ListIntents(ctx context.Context, bookingID string) ([]dashboard.TransitionIntent, error) {
	return listIntents(ctx, store.tx, bookingID)
}

func recordIntent(ctx context.Context, db querier, intent dashboard.TransitionIntent) error {
	createdUnixUTC := intent.CreatedUnixUTC
	if createdUnixUTC == 0 {
		createdUnixUTC = time.Now().UTC().Unix()
	}
	_, err := db.Exec(ctx, sqlInsertIntent,
		intent.IdempotencyKey.String(),
		intent.BookingID,
		intent.UserID,
		intent.From.String(),
		intent.Action.String(),
		createdUnixUTC,
	)
	if isIdempotencyConflict(err) {
		return wrapStoreError(errorSubjectIntent, errorCodeDuplicate, dashboard.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectIntent, errorCodeInsert, err)
	}
	return nil
}

func scanSession(row pgx.Row) (dashboard.Session, error) {
	var (
		loaded    dashboard.Session
		expiresAt time.Time
	)
	err := row.Scan(
		&loaded.ID,
		&loaded.Token,
		&loaded.Email,
		&loaded.Role,
		&loaded.UserID,
		&loaded.ProfileExists,
		&expiresAt,
	)
	if err != nil {
		return dashboard.Session{}, err
	}
	loaded.ExpiresAt = expiresAt.UTC()
	return loaded, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return dashboard.WrapError(errorOperationStore, subject, code, err)
}

func isIdempotencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintTransitionIntentKey
	}
	return false
}
