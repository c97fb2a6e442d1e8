package dashboard

import (
	"fmt"
	"slices"
	"strings"
)

// SortKey selects one of the fixed booking orderings.
type SortKey string

const (
	SortCheckInAsc  SortKey = "checkin-asc"
	SortCheckInDesc SortKey = "checkin-desc"
	SortAmountDesc  SortKey = "amount-desc"
	SortAmountAsc   SortKey = "amount-asc"
)

// DefaultSortKey is applied when the caller does not choose an ordering.
const DefaultSortKey = SortCheckInAsc

// ParseSortKey validates a sort key. An empty value yields DefaultSortKey.
func ParseSortKey(raw string) (SortKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultSortKey, nil
	}
	switch key := SortKey(trimmed); key {
	case SortCheckInAsc, SortCheckInDesc, SortAmountDesc, SortAmountAsc:
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, raw)
}

// SortResult is a sorted copy plus the number of records whose sort field was malformed.
type SortResult struct {
	Bookings  []Booking
	Anomalies int
}

// SortBookings returns a stably sorted copy of bookings.
//
// A missing or unparseable check-in sorts as the latest instant; a malformed
// gross amount sorts as the smallest amount. Unknown keys leave the order unchanged.
func SortBookings(bookings []Booking, key SortKey) SortResult {
	sorted := slices.Clone(bookings)
	if sorted == nil {
		sorted = []Booking{}
	}
	var compare func(left, right Booking) int
	var malformed Anomaly
	switch key {
	case SortCheckInAsc:
		compare, malformed = compareCheckIn, AnomalyCheckIn
	case SortCheckInDesc:
		compare, malformed = func(left, right Booking) int { return compareCheckIn(right, left) }, AnomalyCheckIn
	case SortAmountAsc:
		compare, malformed = compareGrossAmount, AnomalyGrossAmount
	case SortAmountDesc:
		compare, malformed = func(left, right Booking) int { return compareGrossAmount(right, left) }, AnomalyGrossAmount
	default:
		return SortResult{Bookings: sorted}
	}
	slices.SortStableFunc(sorted, compare)
	anomalies := 0
	for _, booking := range sorted {
		if booking.Anomalies.Has(malformed) {
			anomalies++
		}
	}
	return SortResult{Bookings: sorted, Anomalies: anomalies}
}

func compareCheckIn(left, right Booking) int {
	leftMissing := left.Anomalies.Has(AnomalyCheckIn) || left.CheckIn.IsZero()
	rightMissing := right.Anomalies.Has(AnomalyCheckIn) || right.CheckIn.IsZero()
	switch {
	case leftMissing && rightMissing:
		return 0
	case leftMissing:
		return 1
	case rightMissing:
		return -1
	}
	return left.CheckIn.Compare(right.CheckIn)
}

func compareGrossAmount(left, right Booking) int {
	leftMissing := left.Anomalies.Has(AnomalyGrossAmount)
	rightMissing := right.Anomalies.Has(AnomalyGrossAmount)
	switch {
	case leftMissing && rightMissing:
		return 0
	case leftMissing:
		return -1
	case rightMissing:
		return 1
	}
	return left.GrossAmount.Cmp(right.GrossAmount)
}
