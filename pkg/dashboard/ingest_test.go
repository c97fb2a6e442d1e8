package dashboard

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeBookingsNormalizesFieldNames(test *testing.T) {
	test.Parallel()
	payload := []byte(`[
		{"booking_id":"B1","name":"Asha","room_id":"R-101","checkIn":"2025-10-10","checkOut":"2025-10-12",
		 "booking_status":"Confirmed","payment_status":"Pending","Gross Amount to be paid by customer":"₹800",
		 "Payment left to pay customer":200,"is_refundable":true},
		{"id":"B2","guest_name":"Ravi","room":"R-102","check_in":"2025-10-08T10:30:00","check_out":"2025-10-09",
		 "status":"checked in","paymentStatus":"paid","amount":300}
	]`)
	bookings, err := DecodeBookings(payload)
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if len(bookings) != 2 {
		test.Fatalf("expected 2 bookings, got %d", len(bookings))
	}
	first := bookings[0]
	if first.ID != "B1" || first.GuestName != "Asha" || first.RoomID != "R-101" {
		test.Fatalf("unexpected identity fields: %+v", first)
	}
	if first.Status != BookingStatusConfirmed || first.PaymentStatus != PaymentStatusPending {
		test.Fatalf("unexpected statuses: %+v", first)
	}
	if first.GrossAmount.String() != "800.00" || first.PaymentLeft.String() != "200.00" || first.AmountPaid().String() != "600.00" {
		test.Fatalf("unexpected amounts: %+v", first)
	}
	if !first.Refundable || first.Anomalies != 0 {
		test.Fatalf("unexpected flags: %+v", first)
	}
	if !first.CheckIn.Equal(time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)) {
		test.Fatalf("unexpected check-in %v", first.CheckIn)
	}
	second := bookings[1]
	if second.ID != "B2" || second.Status != BookingStatusCheckIn || second.PaymentStatus != PaymentStatusCompleted {
		test.Fatalf("unexpected second booking: %+v", second)
	}
	if !second.PaymentLeft.IsZero() || second.GrossAmount.String() != "300.00" {
		test.Fatalf("unexpected second amounts: %+v", second)
	}
}

func TestDecodeBookingsKeepsMalformedRecords(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"data":[
		{"booking_id":"B3","check_in":"soon","check_out":"2025-10-09","booking_status":"Teleported",
		 "payment_status":"Completed","gross_amount":"n/a","payment_left":0},
		{"booking_id":"B4","check_in":"2025-10-01","check_out":"2025-10-02","booking_status":"Pending",
		 "payment_status":"Pending","gross_amount":100,"payment_left":150}
	]}`)
	bookings, err := DecodeBookings(payload)
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if len(bookings) != 2 {
		test.Fatalf("expected malformed record to be kept, got %d bookings", len(bookings))
	}
	malformed := bookings[0]
	for _, flag := range []Anomaly{AnomalyCheckIn, AnomalyStatus, AnomalyGrossAmount} {
		if !malformed.Anomalies.Has(flag) {
			test.Fatalf("expected anomaly %d on %+v", flag, malformed)
		}
	}
	if malformed.Status != BookingStatus("Teleported") {
		test.Fatalf("expected raw status to be preserved, got %q", malformed.Status)
	}
	if malformed.Anomalies.Count() != 3 {
		test.Fatalf("expected 3 anomalies, got %d", malformed.Anomalies.Count())
	}
	overpaid := bookings[1]
	if !overpaid.Anomalies.Has(AnomalyPaymentLeftExceedsGross) {
		test.Fatalf("expected payment-left anomaly on %+v", overpaid)
	}
	if overpaid.PaymentLeft.String() != "150.00" {
		test.Fatalf("expected payment left to be kept, got %s", overpaid.PaymentLeft)
	}
}

func TestDecodeLedgerEntries(test *testing.T) {
	test.Parallel()
	payload := []byte(`[
		{"sr":2,"hotel_id":"H1","booking_id":null,"txn_date":"2025-10-02","via":"UPI","transaction_id":"NA",
		 "type":"WITHDRAW","amount":400,"balance_after":600},
		{"sr":1,"hotel_id":"H1","booking_id":"B1","txn_date":"2025-10-01","via":"Razorpay","transaction_id":"pay_1",
		 "type":"CR","amount":"1000","balance_after":"1000"}
	]`)
	entries, err := DecodeLedgerEntries(payload)
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	withdrawal := entries[0]
	if withdrawal.Sequence != 2 || withdrawal.Type != EntryWithdraw || withdrawal.BookingID != nil {
		test.Fatalf("unexpected withdrawal: %+v", withdrawal)
	}
	if withdrawal.HasTransactionID() {
		test.Fatalf("expected NA transaction id to be unassigned")
	}
	if withdrawal.SignedAmount().String() != "-400.00" {
		test.Fatalf("expected signed withdrawal, got %s", withdrawal.SignedAmount())
	}
	credit := entries[1]
	if credit.BookingID == nil || *credit.BookingID != "B1" || !credit.HasTransactionID() {
		test.Fatalf("unexpected credit: %+v", credit)
	}
	if credit.Anomalies != 0 || withdrawal.Anomalies != 0 {
		test.Fatalf("expected no anomalies")
	}
}

func TestDecodeTransactionRequests(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"count":2,"data":[
		{"sr":1,"hotel_id":"H1","txn_date":"2025-10-01 09:00:00","amount":500,"status":"approved","remark":"settled"},
		{"sr":2,"hotel_id":"H1","txn_date":"2025-10-02","amount":200,"status":"PENDING","remark":null}
	]}`)
	requests, err := DecodeTransactionRequests(payload)
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if len(requests) != 2 {
		test.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[0].Status != RequestStatusApproved || requests[0].Remark == nil || *requests[0].Remark != "settled" {
		test.Fatalf("unexpected first request: %+v", requests[0])
	}
	if requests[1].Status != RequestStatusPending || requests[1].Remark != nil {
		test.Fatalf("unexpected second request: %+v", requests[1])
	}
}

func TestDecodeFinancialSummary(test *testing.T) {
	test.Parallel()
	summary, err := DecodeFinancialSummary([]byte(`{"total_income":"1000","total_withdrawn":400,"balance":600}`))
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if summary == nil || summary.Balance.String() != "600.00" || summary.TotalWithdrawn.String() != "400.00" {
		test.Fatalf("unexpected summary: %+v", summary)
	}
	absent, err := DecodeFinancialSummary([]byte(`{"message":"No summary"}`))
	if err != nil || absent != nil {
		test.Fatalf("expected no summary, got %+v, %v", absent, err)
	}
	_, err = DecodeFinancialSummary([]byte(`{"total_income":"lots","balance":1}`))
	if !errors.Is(err, ErrMalformedPayload) {
		test.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestDecodeBankDetails(test *testing.T) {
	test.Parallel()
	details, err := DecodeBankDetails([]byte(`[{"hotel_id":"H1","bank_account_no":"0012","ifsc_code":"SBIN0001","upi_id":null,"bank_name":"SBI"}]`))
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if len(details) != 1 || details[0].AccountNumber != "0012" || details[0].IFSC != "SBIN0001" || details[0].UPI != "" {
		test.Fatalf("unexpected bank details: %+v", details)
	}
}

func TestDecodeBookingDetails(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"status":200,"message":"ok","data":{
		"booking_ID":"B1","booking_Status":"Confirmed","checkIn":"2025-10-10","checkOut":"2025-10-12",
		"payment_Status":"Pending","payment_type":"UPI","is_refundable":false,"tax_amount":96,"platformFee":20,
		"Room Price":700,"amount paid by customer":616,"payment left to pay customer":200,
		"gross amount to be paid by customer":816,"name":"Asha","hotel_ID":"H1","hotel_name":"Sea View","room_ID":"R-101","RoomNumber":101}}`)
	details, err := DecodeBookingDetails(payload)
	if err != nil {
		test.Fatalf("decode failed: %v", err)
	}
	if details.ID != "B1" || details.Status != BookingStatusConfirmed || details.HotelName != "Sea View" || details.RoomNumber != 101 {
		test.Fatalf("unexpected booking fields: %+v", details)
	}
	if details.RoomPrice.String() != "700.00" || details.TaxAmount.String() != "96.00" || details.PlatformFee.String() != "20.00" {
		test.Fatalf("unexpected fee breakdown: %+v", details)
	}
	if details.PaidByCustomer.String() != "616.00" || details.GrossAmount.String() != "816.00" || details.PaymentLeft.String() != "200.00" {
		test.Fatalf("unexpected payment fields: %+v", details)
	}
	if details.Anomalies != 0 || details.PaymentType != "UPI" {
		test.Fatalf("unexpected flags: %+v", details)
	}

	partial, err := DecodeBookingDetails([]byte(`{"booking_ID":"B2","booking_Status":"CheckIn","gross amount":300,"tax_amount":"n/a"}`))
	if err != nil {
		test.Fatalf("decode partial failed: %v", err)
	}
	if !partial.RoomPrice.IsZero() || !partial.Anomalies.Has(AnomalyAmount) {
		test.Fatalf("expected zero room price and amount anomaly, got %+v", partial)
	}

	if _, err := DecodeBookingDetails([]byte(`{"status":200,"data":null}`)); !errors.Is(err, ErrMalformedPayload) {
		test.Fatalf("expected ErrMalformedPayload for empty details, got %v", err)
	}
}

func TestDecodeFoldedKeysIsDeterministic(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "lexically smallest spelling", payload: `[{"booking_id":"B1","gross_amount":900,"gross amount":800,"Gross-Amount":700}]`, want: "700.00"},
		{name: "canonical spelling wins", payload: `[{"booking_id":"B1","gross amount":800,"grossamount":600}]`, want: "600.00"},
	}
	for _, testCase := range cases {
		for attempt := 0; attempt < 50; attempt++ {
			bookings, err := DecodeBookings([]byte(testCase.payload))
			if err != nil {
				test.Fatalf("%s: decode failed: %v", testCase.name, err)
			}
			if got := bookings[0].GrossAmount.String(); got != testCase.want {
				test.Fatalf("%s: attempt %d expected %s, got %s", testCase.name, attempt, testCase.want, got)
			}
		}
	}
}

func TestDecodeRejectsNonRecordPayloads(test *testing.T) {
	test.Parallel()
	for _, payload := range []string{`42`, `"text"`, `[1,2]`, `{"broken"`} {
		if _, err := DecodeBookings([]byte(payload)); !errors.Is(err, ErrMalformedPayload) {
			test.Fatalf("payload %s: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
	empty, err := DecodeBookings([]byte(` null `))
	if err != nil || len(empty) != 0 {
		test.Fatalf("expected empty result for null, got %v, %v", empty, err)
	}
}

func TestParseTimestamp(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"2025-10-08", "2025-10-08T00:00:00Z", "2025-10-08 00:00:00", "08-10-2025"} {
		if !mustDate(test, raw).Equal(time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)) {
			test.Fatalf("unexpected parse for %q", raw)
		}
	}
	if _, err := ParseTimestamp("tomorrow"); !errors.Is(err, ErrInvalidDate) {
		test.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
