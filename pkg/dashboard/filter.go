package dashboard

import "strings"

// Predicate decides whether a record belongs in a filtered view.
type Predicate[T any] func(T) bool

// Filter returns the records satisfying every predicate, in input order.
// Nil predicates are ignored; the input slice is never modified.
func Filter[T any](records []T, predicates ...Predicate[T]) []T {
	active := make([]Predicate[T], 0, len(predicates))
	for _, predicate := range predicates {
		if predicate != nil {
			active = append(active, predicate)
		}
	}
	filtered := make([]T, 0, len(records))
	for _, record := range records {
		if matchesAll(record, active) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func matchesAll[T any](record T, predicates []Predicate[T]) bool {
	for _, predicate := range predicates {
		if !predicate(record) {
			return false
		}
	}
	return true
}

// MatchText builds a case-insensitive substring predicate over the searchable
// fields of a record. An empty query returns nil (no constraint); any other
// query, whitespace included, must appear verbatim in some field. Absent
// nullable fields must simply be left out of the returned slice.
func MatchText[T any](query string, fields func(T) []string) Predicate[T] {
	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)
	return func(record T) bool {
		for _, field := range fields(record) {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	}
}

// MatchCategory builds an exact-equality predicate on an enumerated field.
// The sentinels "", "all" and "ALL" return nil (no constraint).
func MatchCategory[T any, V ~string](filter string, field func(T) V) Predicate[T] {
	if IsNoConstraint(filter) {
		return nil
	}
	return func(record T) bool {
		return string(field(record)) == filter
	}
}

// IsNoConstraint reports whether a categorical filter value is the "all" sentinel.
func IsNoConstraint(filter string) bool {
	return filter == "" || filter == FilterAll || filter == FilterAllUpper
}

// BookingFilter is the set of filters offered on the bookings screen.
type BookingFilter struct {
	Query         string
	Status        string
	PaymentStatus string
}

// TransactionRequestFilter is the set of filters offered on the payout requests list.
type TransactionRequestFilter struct {
	Query  string
	Status string
}

// BookingSearchFields returns guest name, booking id and room id.
func BookingSearchFields(booking Booking) []string {
	return []string{booking.GuestName, booking.ID, booking.RoomID}
}

// LedgerSearchFields returns hotel id, booking id (when present), transaction id and channel.
func LedgerSearchFields(entry LedgerEntry) []string {
	fields := make([]string, 0, 4)
	fields = append(fields, entry.HotelID)
	if entry.BookingID != nil {
		fields = append(fields, *entry.BookingID)
	}
	return append(fields, entry.TransactionID, entry.Via)
}

// TransactionRequestSearchFields returns hotel id, status and remark (when present).
func TransactionRequestSearchFields(request TransactionRequest) []string {
	fields := make([]string, 0, 3)
	fields = append(fields, request.HotelID, string(request.Status))
	if request.Remark != nil {
		fields = append(fields, *request.Remark)
	}
	return fields
}

// FilterBookings applies text search, booking status and payment status filters.
func FilterBookings(bookings []Booking, filter BookingFilter) []Booking {
	return Filter(bookings,
		MatchText(filter.Query, BookingSearchFields),
		MatchCategory(filter.Status, func(booking Booking) BookingStatus { return booking.Status }),
		MatchCategory(filter.PaymentStatus, func(booking Booking) PaymentStatus { return booking.PaymentStatus }),
	)
}

// FilterLedger narrows ledger entries by text search only.
func FilterLedger(entries []LedgerEntry, query string) []LedgerEntry {
	return Filter(entries, MatchText(query, LedgerSearchFields))
}

// FilterTransactionRequests applies text search and request status filters.
func FilterTransactionRequests(requests []TransactionRequest, filter TransactionRequestFilter) []TransactionRequest {
	return Filter(requests,
		MatchText(filter.Query, TransactionRequestSearchFields),
		MatchCategory(filter.Status, func(request TransactionRequest) RequestStatus { return request.Status }),
	)
}
