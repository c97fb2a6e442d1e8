package dashboard

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusConfirmed  BookingStatus = "Confirmed"
	BookingStatusPending    BookingStatus = "Pending"
	BookingStatusCheckIn    BookingStatus = "CheckIn"
	BookingStatusCheckedOut BookingStatus = "CheckedOut"
	BookingStatusCancelled  BookingStatus = "Cancelled"
)

// PaymentStatus is the settlement state of a booking payment.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusFailed    PaymentStatus = "Failed"
)

// EntryType distinguishes ledger credits from withdrawals.
type EntryType string

const (
	EntryCredit   EntryType = "CR"
	EntryWithdraw EntryType = "WITHDRAW"
)

// RequestStatus is the server-side state of a withdrawal request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// Anomaly flags a malformed field on an ingested record.
type Anomaly uint16

const (
	AnomalyCheckIn Anomaly = 1 << iota
	AnomalyCheckOut
	AnomalyDate
	AnomalyAmount
	AnomalyGrossAmount
	AnomalyPaymentLeft
	AnomalyPaymentLeftExceedsGross
	AnomalyStatus
	AnomalyPaymentStatus
	AnomalyEntryType
	AnomalyBalanceAfter
)

// Has reports whether every bit in flag is set.
func (anomaly Anomaly) Has(flag Anomaly) bool {
	return anomaly&flag == flag
}

// Count returns the number of distinct anomalies recorded.
func (anomaly Anomaly) Count() int {
	return bits.OnesCount16(uint16(anomaly))
}

// Booking is the canonical booking record used by filters and sorts.
type Booking struct {
	ID            string        `json:"booking_id"`
	GuestName     string        `json:"guest_name"`
	Phone         string        `json:"phone_number,omitempty"`
	HotelID       string        `json:"hotel_id,omitempty"`
	RoomID        string        `json:"room_id"`
	RoomNumber    int64         `json:"room_number,omitempty"`
	CheckIn       time.Time     `json:"check_in"`
	CheckOut      time.Time     `json:"check_out"`
	Status        BookingStatus `json:"booking_status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	GrossAmount   Amount        `json:"gross_amount"`
	PaymentLeft   Amount        `json:"payment_left"`
	Refundable    bool          `json:"is_refundable"`
	Anomalies     Anomaly       `json:"anomalies,omitempty"`
}

// AmountPaid returns gross amount minus payment left.
func (booking Booking) AmountPaid() Amount {
	return booking.GrossAmount.Sub(booking.PaymentLeft)
}

// BookingDetails is the single-booking view with its fee breakdown.
type BookingDetails struct {
	Booking
	HotelName      string `json:"hotel_name,omitempty"`
	PaymentType    string `json:"payment_type,omitempty"`
	RoomPrice      Amount `json:"room_price"`
	TaxAmount      Amount `json:"tax_amount"`
	PlatformFee    Amount `json:"platform_fee"`
	PaidByCustomer Amount `json:"amount_paid_by_customer"`
}

// LedgerEntry is one immutable, balance-bearing line of a hotel's wallet history.
type LedgerEntry struct {
	Sequence      int64     `json:"sr"`
	HotelID       string    `json:"hotel_id"`
	BookingID     *string   `json:"booking_id"`
	Date          time.Time `json:"txn_date"`
	Via           string    `json:"via"`
	TransactionID string    `json:"transaction_id"`
	Type          EntryType `json:"type"`
	Amount        Amount    `json:"amount"`
	BalanceAfter  Amount    `json:"balance_after"`
	Anomalies     Anomaly   `json:"anomalies,omitempty"`
}

// HasTransactionID reports whether the payment rail has assigned an id yet.
func (entry LedgerEntry) HasTransactionID() bool {
	trimmed := strings.TrimSpace(entry.TransactionID)
	return trimmed != "" && trimmed != transactionIDUnassigned
}

// SignedAmount returns +amount for credits and -amount for withdrawals.
func (entry LedgerEntry) SignedAmount() Amount {
	if entry.Type == EntryWithdraw {
		return entry.Amount.Neg()
	}
	return entry.Amount
}

// TransactionRequest is a withdrawal request and its server-side resolution.
type TransactionRequest struct {
	Sequence  int64         `json:"sr"`
	HotelID   string        `json:"hotel_id"`
	Date      time.Time     `json:"txn_date"`
	Amount    Amount        `json:"amount"`
	Status    RequestStatus `json:"status"`
	Remark    *string       `json:"remark"`
	Anomalies Anomaly       `json:"anomalies,omitempty"`
}

// FinancialSummary is the server-of-record aggregate for a hotel wallet.
type FinancialSummary struct {
	HotelID        string `json:"hotel_id,omitempty"`
	TotalIncome    Amount `json:"total_income"`
	TotalWithdrawn Amount `json:"total_withdrawn"`
	Balance        Amount `json:"balance"`
}

// BankDetails describes the payout destination registered for a hotel.
type BankDetails struct {
	HotelID       string `json:"hotel_id"`
	AccountNumber string `json:"bank_account_no"`
	IFSC          string `json:"ifsc_code"`
	UPI           string `json:"upi_id"`
	BankName      string `json:"bank_name"`
}

// Session is the explicit authentication context passed to backend calls.
type Session struct {
	ID            string
	Token         string
	Email         string
	Role          string
	UserID        int64
	ProfileExists bool
	ExpiresAt     time.Time
}

// Expired reports whether the session is past its expiry at the given instant.
func (session Session) Expired(at time.Time) bool {
	return !session.ExpiresAt.IsZero() && !at.Before(session.ExpiresAt)
}

// ParseBookingStatus maps backend spellings onto the canonical status.
// Unknown values are returned verbatim with ok=false.
func ParseBookingStatus(raw string) (BookingStatus, bool) {
	switch canonicalToken(raw) {
	case "confirmed":
		return BookingStatusConfirmed, true
	case "pending":
		return BookingStatusPending, true
	case "checkin", "checkedin":
		return BookingStatusCheckIn, true
	case "checkout", "checkedout":
		return BookingStatusCheckedOut, true
	case "cancelled", "canceled":
		return BookingStatusCancelled, true
	}
	return BookingStatus(strings.TrimSpace(raw)), false
}

// ParsePaymentStatus maps backend spellings onto the canonical payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch canonicalToken(raw) {
	case "completed", "complete", "paid":
		return PaymentStatusCompleted, true
	case "pending":
		return PaymentStatusPending, true
	case "failed":
		return PaymentStatusFailed, true
	}
	return PaymentStatus(strings.TrimSpace(raw)), false
}

// ParseEntryType maps backend spellings onto the canonical ledger entry type.
func ParseEntryType(raw string) (EntryType, bool) {
	switch canonicalToken(raw) {
	case "cr", "credit":
		return EntryCredit, true
	case "withdraw", "withdrawal", "dr", "debit":
		return EntryWithdraw, true
	}
	return EntryType(strings.TrimSpace(raw)), false
}

// ParseRequestStatus maps backend spellings onto the canonical request status.
func ParseRequestStatus(raw string) (RequestStatus, bool) {
	switch canonicalToken(raw) {
	case "pending":
		return RequestStatusPending, true
	case "approved":
		return RequestStatusApproved, true
	case "rejected":
		return RequestStatusRejected, true
	}
	return RequestStatus(strings.TrimSpace(raw)), false
}

// String returns the raw status value.
func (status BookingStatus) String() string { return string(status) }

// String returns the raw status value.
func (status PaymentStatus) String() string { return string(status) }

// String returns the raw entry type value.
func (entryType EntryType) String() string { return string(entryType) }

// String returns the raw status value.
func (status RequestStatus) String() string { return string(status) }

// IdempotencyKey scopes duplicate detection for status transition requests.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// canonicalToken lowercases and drops spaces, underscores and hyphens.
func canonicalToken(raw string) string {
	var builder strings.Builder
	for _, character := range strings.ToLower(strings.TrimSpace(raw)) {
		switch character {
		case ' ', '_', '-':
			continue
		}
		builder.WriteRune(character)
	}
	return builder.String()
}
