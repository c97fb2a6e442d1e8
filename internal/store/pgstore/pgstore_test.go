package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsIdempotencyConflict(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "intent key", err: &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintTransitionIntentKey}, want: true},
		{name: "wrapped intent key", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintTransitionIntentKey}), want: true},
		{name: "session primary key", err: &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: "dashboard_sessions_pkey"}, want: false},
		{name: "other code", err: &pgconn.PgError{Code: "23503", ConstraintName: constraintTransitionIntentKey}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
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

func TestWrapStoreErrorKeepsSentinel(test *testing.T) {
	test.Parallel()
	err := wrapStoreError(errorSubjectIntent, errorCodeDuplicate, dashboard.ErrDuplicateIdempotencyKey)
	if !errors.Is(err, dashboard.ErrDuplicateIdempotencyKey) {
		test.Fatalf("expected duplicate sentinel, got %v", err)
	}
	var operationError dashboard.OperationError
	if !errors.As(err, &operationError) {
		test.Fatalf("expected OperationError, got %T", err)
	}
	if operationError.Code() != errorCodeDuplicate {
		test.Fatalf("expected code %q, got %q", errorCodeDuplicate, operationError.Code())
	}
}
