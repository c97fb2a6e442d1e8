package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/session"
	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func newTestStore(test *testing.T) *Store {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(test.TempDir()+"/dashboard.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func mustIntent(test *testing.T, bookingID string, from dashboard.BookingStatus, action dashboard.Action) dashboard.TransitionIntent {
	test.Helper()
	key, err := dashboard.NewIdempotencyKey(bookingID + ":" + from.String() + ":" + action.String())
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return dashboard.TransitionIntent{
		IdempotencyKey: key,
		BookingID:      bookingID,
		UserID:         7,
		From:           from,
		Action:         action,
		CreatedUnixUTC: 1760000000,
	}
}

func TestRecordIntentRejectsDuplicateKey(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	intent := mustIntent(test, "B1", dashboard.BookingStatusConfirmed, dashboard.ActionCheckIn)

	if err := store.RecordIntent(ctx, intent); err != nil {
		test.Fatalf("first record: %v", err)
	}
	err := store.RecordIntent(ctx, intent)
	if !errors.Is(err, dashboard.ErrDuplicateIdempotencyKey) {
		test.Fatalf("expected duplicate error, got %v", err)
	}

	next := mustIntent(test, "B1", dashboard.BookingStatusCheckIn, dashboard.ActionCheckOut)
	next.CreatedUnixUTC = 1760000100
	if err := store.RecordIntent(ctx, next); err != nil {
		test.Fatalf("second transition: %v", err)
	}
	intents, err := store.ListIntents(ctx, "B1")
	if err != nil {
		test.Fatalf("list intents: %v", err)
	}
	if len(intents) != 2 {
		test.Fatalf("expected 2 intents, got %d", len(intents))
	}
	if intents[0].Action != dashboard.ActionCheckIn || intents[1].Action != dashboard.ActionCheckOut {
		test.Fatalf("unexpected order: %+v", intents)
	}
	if intents[0].CreatedUnixUTC != 1760000000 {
		test.Fatalf("expected created time to round-trip, got %d", intents[0].CreatedUnixUTC)
	}
}

func TestListIntentsInsideTransaction(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	err := store.WithTx(ctx, func(ctx context.Context, txStore dashboard.IntentStore) error {
		if err := txStore.RecordIntent(ctx, mustIntent(test, "B7", dashboard.BookingStatusConfirmed, dashboard.ActionCheckIn)); err != nil {
			return err
		}
		intents, err := txStore.ListIntents(ctx, "B7")
		if err != nil {
			return err
		}
		if len(intents) != 1 || intents[0].IdempotencyKey.String() != "B7:Confirmed:CheckIn" {
			test.Errorf("expected pending intent to be visible, got %+v", intents)
		}
		return nil
	})
	if err != nil {
		test.Fatalf("transaction: %v", err)
	}
	empty, err := store.ListIntents(ctx, "B8")
	if err != nil || empty == nil || len(empty) != 0 {
		test.Fatalf("expected empty non-nil list, got %v, %v", empty, err)
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	intent := mustIntent(test, "B2", dashboard.BookingStatusConfirmed, dashboard.ActionCheckIn)
	upstreamFailure := errors.New("upstream failure")

	err := store.WithTx(ctx, func(ctx context.Context, txStore dashboard.IntentStore) error {
		if err := txStore.RecordIntent(ctx, intent); err != nil {
			return err
		}
		return upstreamFailure
	})
	if !errors.Is(err, upstreamFailure) {
		test.Fatalf("expected upstream failure, got %v", err)
	}
	if err := store.RecordIntent(ctx, intent); err != nil {
		test.Fatalf("expected rolled back intent to be recordable, got %v", err)
	}
}

func TestSessionLifecycle(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	expiresAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	value := dashboard.Session{
		ID:            "6f1c0e7e-3f57-4a4e-9d7a-3f4f2a7a9d11",
		Token:         "token-1",
		Email:         "owner@example.com",
		Role:          "OWNER",
		UserID:        7,
		ProfileExists: true,
		ExpiresAt:     expiresAt,
	}

	if _, err := store.LoadSession(ctx, value.ID); !errors.Is(err, session.ErrSessionNotFound) {
		test.Fatalf("expected not found before save, got %v", err)
	}
	if err := store.SaveSession(ctx, value); err != nil {
		test.Fatalf("save: %v", err)
	}
	value.Token = "token-2"
	if err := store.SaveSession(ctx, value); err != nil {
		test.Fatalf("resave: %v", err)
	}
	loaded, err := store.LoadSession(ctx, value.ID)
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if loaded.Token != "token-2" || loaded.UserID != 7 || !loaded.ProfileExists {
		test.Fatalf("unexpected session: %+v", loaded)
	}
	if !loaded.ExpiresAt.Equal(expiresAt) {
		test.Fatalf("expected expiry %v, got %v", expiresAt, loaded.ExpiresAt)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		test.Fatalf("expected 1 session, got %d", len(sessions))
	}

	if err := store.DeleteSession(ctx, value.ID); err != nil {
		test.Fatalf("delete: %v", err)
	}
	if err := store.DeleteSession(ctx, value.ID); err != nil {
		test.Fatalf("delete missing: %v", err)
	}
	if _, err := store.LoadSession(ctx, value.ID); !errors.Is(err, session.ErrSessionNotFound) {
		test.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestIsIdempotencyConflict(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm duplicate", err: gorm.ErrDuplicatedKey, want: true},
		{name: "postgres unique", err: &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintTransitionIntentKey}, want: true},
		{name: "postgres other constraint", err: &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: "dashboard_sessions_pkey"}, want: false},
		{name: "unrelated", err: errors.New("boom"), want: false},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if got := isIdempotencyConflict(testCase.err); got != testCase.want {
				test.Fatalf("expected %v, got %v", testCase.want, got)
			}
		})
	}
}
