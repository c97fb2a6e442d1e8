package dashboard

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func mustDate(test *testing.T, raw string) time.Time {
	test.Helper()
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		test.Fatalf("date %q: %v", raw, err)
	}
	return parsed
}

func bookingIDs(bookings []Booking) []string {
	ids := make([]string, 0, len(bookings))
	for _, booking := range bookings {
		ids = append(ids, booking.ID)
	}
	return ids
}

func stringPointer(value string) *string {
	return &value
}

type stubBackend struct {
	mu            sync.Mutex
	bookings      []Booking
	details       map[string]BookingDetails
	applyUpdates  bool
	addedBank     []BankDetails
	active        []Booking
	ledger        []LedgerEntry
	summary       *FinancialSummary
	summaryErr    error
	requests      []TransactionRequest
	bankDetails   []BankDetails
	fetchErr      error
	updateErr     error
	updates       []StatusUpdateRequest
	withdrawals   []Amount
	requestStatus []RequestStatus
	sessionsSeen  []Session
}

func (backend *stubBackend) record(session Session) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.sessionsSeen = append(backend.sessionsSeen, session)
}

func (backend *stubBackend) FetchBookings(_ context.Context, session Session) ([]Booking, error) {
	backend.record(session)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return slices.Clone(backend.bookings), backend.fetchErr
}

func (backend *stubBackend) FetchBookingDetails(_ context.Context, session Session, bookingID string) (BookingDetails, error) {
	backend.record(session)
	if backend.fetchErr != nil {
		return BookingDetails{}, backend.fetchErr
	}
	details, ok := backend.details[bookingID]
	if !ok {
		return BookingDetails{}, ErrUnknownBooking
	}
	return details, nil
}

func (backend *stubBackend) FetchActiveBookings(_ context.Context, session Session) ([]Booking, error) {
	backend.record(session)
	return backend.active, backend.fetchErr
}

func (backend *stubBackend) FetchLedger(_ context.Context, session Session) ([]LedgerEntry, error) {
	backend.record(session)
	return backend.ledger, backend.fetchErr
}

func (backend *stubBackend) FetchFinancialSummary(_ context.Context, session Session) (*FinancialSummary, error) {
	backend.record(session)
	return backend.summary, backend.summaryErr
}

func (backend *stubBackend) FetchTransactionRequests(_ context.Context, session Session, status RequestStatus) ([]TransactionRequest, error) {
	backend.record(session)
	backend.mu.Lock()
	backend.requestStatus = append(backend.requestStatus, status)
	backend.mu.Unlock()
	return backend.requests, backend.fetchErr
}

func (backend *stubBackend) FetchBankDetails(_ context.Context, session Session) ([]BankDetails, error) {
	backend.record(session)
	return backend.bankDetails, backend.fetchErr
}

func (backend *stubBackend) UpdateBookingStatus(_ context.Context, session Session, request StatusUpdateRequest) error {
	backend.record(session)
	if backend.updateErr != nil {
		return backend.updateErr
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.updates = append(backend.updates, request)
	if backend.applyUpdates {
		for index := range backend.bookings {
			if backend.bookings[index].ID != request.BookingID {
				continue
			}
			switch request.Action {
			case ActionCheckIn:
				backend.bookings[index].Status = BookingStatusCheckIn
			case ActionCheckOut:
				backend.bookings[index].Status = BookingStatusCheckedOut
			}
		}
	}
	return nil
}

func (backend *stubBackend) AddBankDetails(_ context.Context, session Session, details BankDetails) error {
	backend.record(session)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.addedBank = append(backend.addedBank, details)
	backend.bankDetails = append(backend.bankDetails, details)
	return nil
}

func (backend *stubBackend) RequestWithdrawal(_ context.Context, session Session, amount Amount) error {
	backend.record(session)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.withdrawals = append(backend.withdrawals, amount)
	return nil
}

// memoryIntentStore keeps intents in a map; WithTx commits only on success.
type memoryIntentStore struct {
	mu      sync.Mutex
	intents map[string]TransitionIntent
}

func newMemoryIntentStore() *memoryIntentStore {
	return &memoryIntentStore{intents: map[string]TransitionIntent{}}
}

func (store *memoryIntentStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore IntentStore) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	tx := &memoryIntentTx{parent: store, pending: map[string]TransitionIntent{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for key, intent := range tx.pending {
		store.intents[key] = intent
	}
	return nil
}

func (store *memoryIntentStore) RecordIntent(ctx context.Context, intent TransitionIntent) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore IntentStore) error {
		return txStore.RecordIntent(ctx, intent)
	})
}

func (store *memoryIntentStore) ListIntents(_ context.Context, bookingID string) ([]TransitionIntent, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return listMemoryIntents(store.intents, bookingID), nil
}

func listMemoryIntents(intents map[string]TransitionIntent, bookingID string) []TransitionIntent {
	matched := make([]TransitionIntent, 0)
	for _, intent := range intents {
		if intent.BookingID == bookingID {
			matched = append(matched, intent)
		}
	}
	slices.SortFunc(matched, func(left TransitionIntent, right TransitionIntent) int {
		if left.CreatedUnixUTC != right.CreatedUnixUTC {
			return cmp.Compare(left.CreatedUnixUTC, right.CreatedUnixUTC)
		}
		return strings.Compare(left.IdempotencyKey.String(), right.IdempotencyKey.String())
	})
	return matched
}

type memoryIntentTx struct {
	parent  *memoryIntentStore
	pending map[string]TransitionIntent
}

func (tx *memoryIntentTx) WithTx(ctx context.Context, fn func(ctx context.Context, txStore IntentStore) error) error {
	return fn(ctx, tx)
}

func (tx *memoryIntentTx) RecordIntent(_ context.Context, intent TransitionIntent) error {
	key := intent.IdempotencyKey.String()
	if _, exists := tx.parent.intents[key]; exists {
		return ErrDuplicateIdempotencyKey
	}
	if _, exists := tx.pending[key]; exists {
		return ErrDuplicateIdempotencyKey
	}
	tx.pending[key] = intent
	return nil
}

func (tx *memoryIntentTx) ListIntents(_ context.Context, bookingID string) ([]TransitionIntent, error) {
	return listMemoryIntents(tx.parent.intents, bookingID), nil
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

var testSession = Session{ID: "session-1", Token: "token-1", UserID: 7}
