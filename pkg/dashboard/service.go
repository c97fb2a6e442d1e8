package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Backend is the remote system of record for bookings and wallet data.
type Backend interface {
	FetchBookings(ctx context.Context, session Session) ([]Booking, error)
	FetchBookingDetails(ctx context.Context, session Session, bookingID string) (BookingDetails, error)
	FetchActiveBookings(ctx context.Context, session Session) ([]Booking, error)
	FetchLedger(ctx context.Context, session Session) ([]LedgerEntry, error)
	// FetchFinancialSummary returns nil when the backend publishes no summary.
	FetchFinancialSummary(ctx context.Context, session Session) (*FinancialSummary, error)
	FetchTransactionRequests(ctx context.Context, session Session, status RequestStatus) ([]TransactionRequest, error)
	FetchBankDetails(ctx context.Context, session Session) ([]BankDetails, error)
	AddBankDetails(ctx context.Context, session Session, details BankDetails) error
	UpdateBookingStatus(ctx context.Context, session Session, request StatusUpdateRequest) error
	RequestWithdrawal(ctx context.Context, session Session, amount Amount) error
}

// TransitionIntent is the locally recorded attempt to move a booking forward.
type TransitionIntent struct {
	IdempotencyKey IdempotencyKey
	BookingID      string
	UserID         int64
	From           BookingStatus
	Action         Action
	CreatedUnixUTC int64
}

// IntentStore records transition intents so repeated requests are detected.
// RecordIntent returns ErrDuplicateIdempotencyKey when the key is already present.
// ListIntents returns a booking's intents oldest first.
type IntentStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore IntentStore) error) error
	RecordIntent(ctx context.Context, intent TransitionIntent) error
	ListIntents(ctx context.Context, bookingID string) ([]TransitionIntent, error)
}

// Service composes the derivation core with the backend and intent store.
type Service struct {
	backend Backend
	intents IntentStore
	nowFn   func() int64
	logger  OperationLogger
}

// NewService wires a Service.
func NewService(backend Backend, intents IntentStore, options ...ServiceOption) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend dependency is nil", ErrInvalidServiceConfig)
	}
	if intents == nil {
		return nil, fmt.Errorf("%w: intent store dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		backend: backend,
		intents: intents,
		nowFn:   func() int64 { return time.Now().UTC().Unix() },
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// BookingQuery carries the booking list controls.
type BookingQuery struct {
	Query         string
	Status        string
	PaymentStatus string
	Sort          string
}

// BookingsView is a filtered and ordered booking list.
type BookingsView struct {
	Bookings []Booking `json:"bookings"`
	// Total is the size of the unfiltered feed.
	Total int `json:"total"`
	// Anomalies counts records in the feed with at least one malformed field.
	Anomalies int `json:"anomalies"`
	// SortAnomalies counts shown records whose sort field was malformed.
	SortAnomalies int `json:"sort_anomalies"`
}

// Bookings fetches all bookings, then filters and sorts them.
func (service *Service) Bookings(ctx context.Context, session Session, query BookingQuery) (BookingsView, error) {
	view, operationError := service.bookings(ctx, session, query)
	service.logOperation(ctx, OperationLog{
		Operation: operationListBookings,
		UserID:    session.UserID,
		Records:   len(view.Bookings),
		Anomalies: view.Anomalies,
		Error:     operationError,
	})
	return view, operationError
}

func (service *Service) bookings(ctx context.Context, session Session, query BookingQuery) (BookingsView, error) {
	if err := requireSession(session); err != nil {
		return BookingsView{}, err
	}
	sortKey, err := ParseSortKey(query.Sort)
	if err != nil {
		return BookingsView{}, err
	}
	bookings, err := service.backend.FetchBookings(ctx, session)
	if err != nil {
		return BookingsView{}, err
	}
	filtered := FilterBookings(bookings, normalizeBookingFilter(BookingFilter{
		Query:         query.Query,
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
	}))
	sorted := SortBookings(filtered, sortKey)
	return BookingsView{
		Bookings:      sorted.Bookings,
		Total:         len(bookings),
		Anomalies:     countBookingAnomalies(bookings),
		SortAnomalies: sorted.Anomalies,
	}, nil
}

// ActiveBookings returns the guests currently checked in.
func (service *Service) ActiveBookings(ctx context.Context, session Session) ([]Booking, error) {
	var active []Booking
	operationError := requireSession(session)
	if operationError == nil {
		var bookings []Booking
		bookings, operationError = service.backend.FetchActiveBookings(ctx, session)
		if operationError == nil {
			active = Filter(bookings, MatchCategory(BookingStatusCheckIn.String(), func(booking Booking) BookingStatus {
				return booking.Status
			}))
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationListActiveBookings,
		UserID:    session.UserID,
		Records:   len(active),
		Anomalies: countBookingAnomalies(active),
		Error:     operationError,
	})
	return active, operationError
}

// LedgerView is the searched ledger plus totals over the full ledger.
type LedgerView struct {
	Entries []LedgerEntry `json:"entries"`
	Total   int           `json:"total"`
	Totals  WalletTotals  `json:"totals"`
	// SummaryUnavailable is set when the server summary could not be fetched.
	SummaryUnavailable bool `json:"summary_unavailable"`
}

// Ledger fetches the ledger and the server summary concurrently. The search
// query narrows the displayed entries only.
func (service *Service) Ledger(ctx context.Context, session Session, query string) (LedgerView, error) {
	view, operationError := service.ledger(ctx, session, query)
	service.logOperation(ctx, OperationLog{
		Operation:    operationLedger,
		UserID:       session.UserID,
		Records:      len(view.Entries),
		Anomalies:    view.Totals.Check.Anomalies,
		Inconsistent: operationError == nil && !view.Totals.Agrees(),
		Error:        operationError,
	})
	return view, operationError
}

func (service *Service) ledger(ctx context.Context, session Session, query string) (LedgerView, error) {
	if err := requireSession(session); err != nil {
		return LedgerView{}, err
	}
	wallet, err := service.loadWallet(ctx, session)
	if err != nil {
		return LedgerView{}, err
	}
	return LedgerView{
		Entries:            FilterLedger(wallet.entries, query),
		Total:              len(wallet.entries),
		Totals:             ResolveWalletTotals(wallet.summary, wallet.entries),
		SummaryUnavailable: wallet.summaryErr != nil,
	}, nil
}

type walletSnapshot struct {
	entries    []LedgerEntry
	summary    *FinancialSummary
	summaryErr error
}

func (service *Service) loadWallet(ctx context.Context, session Session) (walletSnapshot, error) {
	var snapshot walletSnapshot
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		entries, err := service.backend.FetchLedger(groupCtx, session)
		if err != nil {
			return err
		}
		snapshot.entries = entries
		return nil
	})
	group.Go(func() error {
		summary, err := service.backend.FetchFinancialSummary(groupCtx, session)
		if err != nil {
			// Totals fall back to the ledger; only cancellation aborts the group.
			if ctxErr := groupCtx.Err(); ctxErr != nil {
				return ctxErr
			}
			snapshot.summaryErr = err
			return nil
		}
		snapshot.summary = summary
		return nil
	})
	if err := group.Wait(); err != nil {
		return walletSnapshot{}, err
	}
	return snapshot, nil
}

// RequestsView is a filtered list of withdrawal requests with per-status totals.
type RequestsView struct {
	Requests []TransactionRequest `json:"requests"`
	Total    int                  `json:"total"`
	Totals   RequestTotals        `json:"totals"`
}

// TransactionRequests lists withdrawal requests. Totals cover the filtered view.
func (service *Service) TransactionRequests(ctx context.Context, session Session, filter TransactionRequestFilter) (RequestsView, error) {
	view, operationError := service.transactionRequests(ctx, session, filter)
	service.logOperation(ctx, OperationLog{
		Operation: operationTransactionRequest,
		UserID:    session.UserID,
		Records:   len(view.Requests),
		Anomalies: countRequestAnomalies(view.Requests),
		Error:     operationError,
	})
	return view, operationError
}

func (service *Service) transactionRequests(ctx context.Context, session Session, filter TransactionRequestFilter) (RequestsView, error) {
	if err := requireSession(session); err != nil {
		return RequestsView{}, err
	}
	var status RequestStatus
	if !IsNoConstraint(filter.Status) {
		if parsed, ok := ParseRequestStatus(filter.Status); ok {
			status = parsed
			filter.Status = parsed.String()
		}
	}
	requests, err := service.backend.FetchTransactionRequests(ctx, session, status)
	if err != nil {
		return RequestsView{}, err
	}
	filtered := FilterTransactionRequests(requests, filter)
	return RequestsView{
		Requests: filtered,
		Total:    len(requests),
		Totals:   SumTransactionRequests(filtered),
	}, nil
}

// BookingAction describes what the dashboard offers for one booking.
type BookingAction struct {
	BookingID string        `json:"booking_id"`
	Status    BookingStatus `json:"booking_status"`
	Action    Action        `json:"action,omitempty"`
	Available bool          `json:"available"`
}

// NextAction looks up a booking and reports its forward action, if any.
func (service *Service) NextAction(ctx context.Context, session Session, bookingID string) (BookingAction, error) {
	var result BookingAction
	booking, operationError := service.findBooking(ctx, session, bookingID)
	if operationError == nil {
		action, ok := NextAction(booking.Status)
		result = BookingAction{BookingID: booking.ID, Status: booking.Status, Action: action, Available: ok}
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationNextAction,
		UserID:    session.UserID,
		BookingID: bookingID,
		Error:     operationError,
	})
	return result, operationError
}

// BookingDetailsView is one booking's details and the action offered for it.
type BookingDetailsView struct {
	Booking         BookingDetails `json:"booking"`
	Action          Action         `json:"action,omitempty"`
	ActionAvailable bool           `json:"action_available"`
}

// BookingDetails fetches the fee breakdown of a single booking.
func (service *Service) BookingDetails(ctx context.Context, session Session, bookingID string) (BookingDetailsView, error) {
	var view BookingDetailsView
	trimmed, operationError := validateBookingRequest(session, bookingID)
	if operationError == nil {
		var details BookingDetails
		details, operationError = service.backend.FetchBookingDetails(ctx, session, trimmed)
		if operationError == nil {
			action, ok := NextAction(details.Status)
			view = BookingDetailsView{Booking: details, Action: action, ActionAvailable: ok}
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationBookingDetails,
		UserID:    session.UserID,
		BookingID: bookingID,
		Anomalies: countBookingAnomalies([]Booking{view.Booking.Booking}),
		Error:     operationError,
	})
	return view, operationError
}

// TransitionResult reports a submitted status update.
type TransitionResult struct {
	Request StatusUpdateRequest `json:"-"`
	// Duplicate is set when the same request was already applied and the
	// backend was not contacted again.
	Duplicate bool `json:"duplicate"`
}

// RequestTransition applies the named action to a booking. The intent is
// recorded in the same transaction as the backend call, so a failed call can
// be retried while a repeated successful one is reported as a duplicate, even
// after the booking has moved past the action's source status.
func (service *Service) RequestTransition(ctx context.Context, session Session, bookingID string, action string) (TransitionResult, error) {
	result, operationError := service.requestTransition(ctx, session, bookingID, action)
	status := ""
	if result.Duplicate {
		status = operationStatusDuplicate
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationTransition,
		UserID:    session.UserID,
		BookingID: bookingID,
		Status:    status,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) requestTransition(ctx context.Context, session Session, bookingID string, rawAction string) (TransitionResult, error) {
	if err := requireSession(session); err != nil {
		return TransitionResult{}, err
	}
	action, ok := ParseAction(rawAction)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%w: %q", ErrInvalidAction, rawAction)
	}
	booking, err := service.findBooking(ctx, session, bookingID)
	if err != nil {
		return TransitionResult{}, err
	}
	request, err := NewStatusUpdateRequest(booking.ID, action)
	if err != nil {
		return TransitionResult{}, err
	}
	if applicable := request.CheckApplicable(booking); applicable != nil {
		applied, err := service.intentRecorded(ctx, request)
		if err != nil {
			return TransitionResult{}, err
		}
		if applied {
			return TransitionResult{Request: request, Duplicate: true}, nil
		}
		return TransitionResult{}, applicable
	}
	intent := TransitionIntent{
		IdempotencyKey: request.IdempotencyKey,
		BookingID:      request.BookingID,
		UserID:         session.UserID,
		From:           request.From,
		Action:         request.Action,
		CreatedUnixUTC: service.nowFn(),
	}
	err = service.intents.WithTx(ctx, func(ctx context.Context, txStore IntentStore) error {
		if err := txStore.RecordIntent(ctx, intent); err != nil {
			return err
		}
		return service.backend.UpdateBookingStatus(ctx, session, request)
	})
	if err != nil {
		if isDuplicate(err) {
			return TransitionResult{Request: request, Duplicate: true}, nil
		}
		return TransitionResult{}, err
	}
	return TransitionResult{Request: request}, nil
}

func (service *Service) intentRecorded(ctx context.Context, request StatusUpdateRequest) (bool, error) {
	intents, err := service.intents.ListIntents(ctx, request.BookingID)
	if err != nil {
		return false, err
	}
	for _, intent := range intents {
		if intent.IdempotencyKey == request.IdempotencyKey {
			return true, nil
		}
	}
	return false, nil
}

// TransitionHistory lists the transitions recorded for one of the owner's
// bookings, oldest first.
func (service *Service) TransitionHistory(ctx context.Context, session Session, bookingID string) ([]TransitionIntent, error) {
	var intents []TransitionIntent
	booking, operationError := service.findBooking(ctx, session, bookingID)
	if operationError == nil {
		intents, operationError = service.intents.ListIntents(ctx, booking.ID)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationTransitionHistory,
		UserID:    session.UserID,
		BookingID: bookingID,
		Records:   len(intents),
		Error:     operationError,
	})
	if intents == nil && operationError == nil {
		intents = []TransitionIntent{}
	}
	return intents, operationError
}

// WithdrawalResult reports an accepted payout request.
type WithdrawalResult struct {
	Amount    Amount `json:"amount"`
	Available Amount `json:"available"`
}

// Withdraw validates a payout against the wallet balance and registered bank
// details before sending it.
func (service *Service) Withdraw(ctx context.Context, session Session, amount Amount) (WithdrawalResult, error) {
	result, operationError := service.withdraw(ctx, session, amount)
	service.logOperation(ctx, OperationLog{
		Operation: operationWithdraw,
		UserID:    session.UserID,
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) withdraw(ctx context.Context, session Session, amount Amount) (WithdrawalResult, error) {
	if err := requireSession(session); err != nil {
		return WithdrawalResult{}, err
	}
	wallet, err := service.loadWallet(ctx, session)
	if err != nil {
		return WithdrawalResult{}, err
	}
	bankDetails, err := service.backend.FetchBankDetails(ctx, session)
	if err != nil {
		return WithdrawalResult{}, err
	}
	available := ResolveWalletTotals(wallet.summary, wallet.entries).Balance
	if err := ValidateWithdrawal(amount, available, len(bankDetails) > 0); err != nil {
		return WithdrawalResult{}, err
	}
	if err := service.backend.RequestWithdrawal(ctx, session, amount); err != nil {
		return WithdrawalResult{}, err
	}
	return WithdrawalResult{Amount: amount, Available: available.Sub(amount)}, nil
}

// AddBankDetails registers a payout destination so withdrawals can go through.
func (service *Service) AddBankDetails(ctx context.Context, session Session, details BankDetails) (BankDetails, error) {
	normalized, operationError := service.addBankDetails(ctx, session, details)
	service.logOperation(ctx, OperationLog{
		Operation: operationAddBankDetails,
		UserID:    session.UserID,
		Error:     operationError,
	})
	return normalized, operationError
}

func (service *Service) addBankDetails(ctx context.Context, session Session, details BankDetails) (BankDetails, error) {
	if err := requireSession(session); err != nil {
		return BankDetails{}, err
	}
	normalized, err := NormalizeBankDetails(details)
	if err != nil {
		return BankDetails{}, err
	}
	if err := service.backend.AddBankDetails(ctx, session, normalized); err != nil {
		return BankDetails{}, err
	}
	return normalized, nil
}

func (service *Service) findBooking(ctx context.Context, session Session, bookingID string) (Booking, error) {
	trimmed, err := validateBookingRequest(session, bookingID)
	if err != nil {
		return Booking{}, err
	}
	bookings, err := service.backend.FetchBookings(ctx, session)
	if err != nil {
		return Booking{}, err
	}
	for _, booking := range bookings {
		if booking.ID == trimmed {
			return booking, nil
		}
	}
	return Booking{}, fmt.Errorf("%w: %s", ErrUnknownBooking, trimmed)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// normalizeBookingFilter maps recognised spellings ("checked in", "paid") onto
// the canonical values; anything else is matched verbatim.
func normalizeBookingFilter(filter BookingFilter) BookingFilter {
	if !IsNoConstraint(filter.Status) {
		if status, ok := ParseBookingStatus(filter.Status); ok {
			filter.Status = status.String()
		}
	}
	if !IsNoConstraint(filter.PaymentStatus) {
		if status, ok := ParsePaymentStatus(filter.PaymentStatus); ok {
			filter.PaymentStatus = status.String()
		}
	}
	return filter
}

func validateBookingRequest(session Session, bookingID string) (string, error) {
	if err := requireSession(session); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(bookingID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return trimmed, nil
}

func requireSession(session Session) error {
	if strings.TrimSpace(session.Token) == "" {
		return ErrMissingSession
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}

func countBookingAnomalies(bookings []Booking) int {
	count := 0
	for _, booking := range bookings {
		if booking.Anomalies != 0 {
			count++
		}
	}
	return count
}

func countRequestAnomalies(requests []TransactionRequest) int {
	count := 0
	for _, request := range requests {
		if request.Anomalies != 0 {
			count++
		}
	}
	return count
}
