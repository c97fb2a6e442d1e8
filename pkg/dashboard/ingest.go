package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Canonical field aliases. Keys are compared after canonicalToken, so
// "gross amount", "Gross Amount" and "gross_amount" share one alias.
var (
	aliasBookingID     = []string{"bookingid", "id"}
	aliasGuestName     = []string{"name", "guestname", "guest"}
	aliasPhone         = []string{"phonenumber", "phone", "phoneno"}
	aliasHotelID       = []string{"hotelid"}
	aliasRoomID        = []string{"roomid", "room"}
	aliasRoomNumber    = []string{"roomnumber", "roomno"}
	aliasCheckIn       = []string{"checkin", "checkindate"}
	aliasCheckOut      = []string{"checkout", "checkoutdate"}
	aliasBookingStatus = []string{"bookingstatus", "status"}
	aliasPaymentStatus = []string{"paymentstatus"}
	aliasGrossAmount   = []string{"grossamount", "grossamounttobepaidbycustomer", "amount", "totalamount"}
	aliasPaymentLeft   = []string{"paymentleft", "paymentlefttopaycustomer", "amountleft"}
	aliasRefundable    = []string{"isrefundable", "refundable"}

	aliasHotelName      = []string{"hotelname"}
	aliasPaymentType    = []string{"paymenttype"}
	aliasRoomPrice      = []string{"roomprice", "price"}
	aliasTaxAmount      = []string{"taxamount", "tax"}
	aliasPlatformFee    = []string{"platformfee"}
	aliasPaidByCustomer = []string{"amountpaidbycustomer", "amountpaid"}

	aliasSequence      = []string{"sr", "sequence", "srno", "seq"}
	aliasTxnDate       = []string{"txndate", "date", "transactiondate", "createdat"}
	aliasVia           = []string{"via", "channel"}
	aliasTransactionID = []string{"transactionid", "txnid"}
	aliasEntryType     = []string{"type", "entrytype", "txntype"}
	aliasAmount        = []string{"amount"}
	aliasBalanceAfter  = []string{"balanceafter", "balance"}
	aliasRequestStatus = []string{"status"}
	aliasRemark        = []string{"remark", "remarks"}

	aliasTotalIncome    = []string{"totalincome", "income"}
	aliasTotalWithdrawn = []string{"totalwithdrawn", "totalwithdraw", "totalwithdrawal", "totalwithdrawals", "withdrawn"}
	aliasBalance        = []string{"balance", "currentbalance", "availablebalance"}

	aliasAccountNumber = []string{"bankaccountno", "accountnumber", "accountno"}
	aliasIFSC          = []string{"ifsccode", "ifsc"}
	aliasUPI           = []string{"upiid", "upi"}
	aliasBankName      = []string{"bankname"}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
}

// ParseTimestamp parses the date and date-time layouts emitted by the backend.
func ParseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// DecodeBookings normalizes a bookings payload into canonical records.
func DecodeBookings(payload []byte) ([]Booking, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return nil, err
	}
	bookings := make([]Booking, 0, len(records))
	for _, record := range records {
		bookings = append(bookings, record.booking())
	}
	return bookings, nil
}

// DecodeBookingDetails normalizes a single-booking payload. Fee fields that
// are absent read as zero; malformed ones flag AnomalyAmount.
func DecodeBookingDetails(payload []byte) (BookingDetails, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return BookingDetails{}, err
	}
	if len(records) == 0 {
		return BookingDetails{}, fmt.Errorf("%w: empty booking details", ErrMalformedPayload)
	}
	record := records[0]
	details := BookingDetails{
		Booking:     record.booking(),
		HotelName:   record.text(aliasHotelName),
		PaymentType: record.text(aliasPaymentType),
	}
	fees := []struct {
		aliases []string
		target  *Amount
	}{
		{aliases: aliasRoomPrice, target: &details.RoomPrice},
		{aliases: aliasTaxAmount, target: &details.TaxAmount},
		{aliases: aliasPlatformFee, target: &details.PlatformFee},
		{aliases: aliasPaidByCustomer, target: &details.PaidByCustomer},
	}
	for _, fee := range fees {
		*fee.target = ZeroAmount()
		if _, present := record.lookup(fee.aliases); !present {
			continue
		}
		amount, err := record.amount(fee.aliases)
		if err != nil {
			details.Anomalies |= AnomalyAmount
			continue
		}
		*fee.target = amount
	}
	if details.ID == "" {
		return BookingDetails{}, fmt.Errorf("%w: booking details without id", ErrMalformedPayload)
	}
	return details, nil
}

// DecodeLedgerEntries normalizes a ledger payload into canonical records.
func DecodeLedgerEntries(payload []byte) ([]LedgerEntry, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return nil, err
	}
	entries := make([]LedgerEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.ledgerEntry())
	}
	return entries, nil
}

// DecodeTransactionRequests normalizes a withdrawal request payload into canonical records.
func DecodeTransactionRequests(payload []byte) ([]TransactionRequest, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return nil, err
	}
	requests := make([]TransactionRequest, 0, len(records))
	for _, record := range records {
		requests = append(requests, record.transactionRequest())
	}
	return requests, nil
}

// DecodeBankDetails normalizes a bank details payload into canonical records.
func DecodeBankDetails(payload []byte) ([]BankDetails, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return nil, err
	}
	details := make([]BankDetails, 0, len(records))
	for _, record := range records {
		details = append(details, BankDetails{
			HotelID:       record.text(aliasHotelID),
			AccountNumber: record.text(aliasAccountNumber),
			IFSC:          record.text(aliasIFSC),
			UPI:           record.text(aliasUPI),
			BankName:      record.text(aliasBankName),
		})
	}
	return details, nil
}

// DecodeFinancialSummary normalizes a summary payload. A payload without any
// recognizable total returns nil so callers fall back to ledger aggregation.
func DecodeFinancialSummary(payload []byte) (*FinancialSummary, error) {
	records, err := decodeRecords(payload)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	record := records[0]
	_, hasIncome := record.lookup(aliasTotalIncome)
	_, hasWithdrawn := record.lookup(aliasTotalWithdrawn)
	_, hasBalance := record.lookup(aliasBalance)
	if !hasIncome && !hasWithdrawn && !hasBalance {
		return nil, nil
	}
	income, incomeErr := record.amount(aliasTotalIncome)
	withdrawn, withdrawnErr := record.amount(aliasTotalWithdrawn)
	balance, balanceErr := record.signedAmount(aliasBalance)
	if incomeErr != nil || withdrawnErr != nil || balanceErr != nil {
		return nil, fmt.Errorf("%w: incomplete financial summary", ErrMalformedPayload)
	}
	return &FinancialSummary{
		HotelID:        record.text(aliasHotelID),
		TotalIncome:    income,
		TotalWithdrawn: withdrawn,
		Balance:        balance,
	}, nil
}

type rawRecord map[string]json.RawMessage

func decodeRecords(payload []byte) ([]rawRecord, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []rawRecord{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		records := make([]rawRecord, 0, len(items))
		for _, item := range items {
			records = append(records, canonicalRecord(item))
		}
		return records, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		record := canonicalRecord(object)
		if data, ok := record["data"]; ok {
			return decodeRecords(data)
		}
		return []rawRecord{record}, nil
	}
	return nil, fmt.Errorf("%w: expected object or array", ErrMalformedPayload)
}

// canonicalRecord folds keys onto their canonical token. When several keys
// fold together, the key already spelled canonically wins, then the
// lexically smallest one.
func canonicalRecord(item map[string]json.RawMessage) rawRecord {
	record := make(rawRecord, len(item))
	for _, key := range slices.Sorted(maps.Keys(item)) {
		canonicalKey := canonicalToken(key)
		if _, exists := record[canonicalKey]; exists && key != canonicalKey {
			continue
		}
		record[canonicalKey] = item[key]
	}
	return record
}

func (record rawRecord) lookup(aliases []string) (json.RawMessage, bool) {
	for _, alias := range aliases {
		value, ok := record[alias]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		return value, true
	}
	return nil, false
}

// optionalText returns the field as a string, accepting JSON strings and numbers.
func (record rawRecord) optionalText(aliases []string) (string, bool) {
	value, ok := record.lookup(aliases)
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		return strings.TrimSpace(text), true
	}
	var number json.Number
	if err := json.Unmarshal(value, &number); err == nil {
		return number.String(), true
	}
	return strings.TrimSpace(string(value)), true
}

func (record rawRecord) text(aliases []string) string {
	text, _ := record.optionalText(aliases)
	return text
}

func (record rawRecord) nullableText(aliases []string) *string {
	text, ok := record.optionalText(aliases)
	if !ok {
		return nil
	}
	return &text
}

func (record rawRecord) integer(aliases []string) int64 {
	text, ok := record.optionalText(aliases)
	if !ok {
		return 0
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func (record rawRecord) boolean(aliases []string) bool {
	value, ok := record.lookup(aliases)
	if !ok {
		return false
	}
	var flag bool
	if err := json.Unmarshal(value, &flag); err == nil {
		return flag
	}
	parsed, err := strconv.ParseBool(record.text(aliases))
	return err == nil && parsed
}

func (record rawRecord) signedAmount(aliases []string) (Amount, error) {
	value, ok := record.lookup(aliases)
	if !ok {
		return Amount{}, fmt.Errorf("%w: missing", ErrInvalidAmount)
	}
	return parseAmountJSON(value)
}

func (record rawRecord) amount(aliases []string) (Amount, error) {
	amount, err := record.signedAmount(aliases)
	if err != nil {
		return Amount{}, err
	}
	if amount.value.IsNegative() {
		return Amount{}, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	return amount, nil
}

func (record rawRecord) timestamp(aliases []string) (time.Time, error) {
	text, ok := record.optionalText(aliases)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidDate)
	}
	return ParseTimestamp(text)
}

func (record rawRecord) booking() Booking {
	var anomalies Anomaly
	checkIn, err := record.timestamp(aliasCheckIn)
	if err != nil {
		anomalies |= AnomalyCheckIn
	}
	checkOut, err := record.timestamp(aliasCheckOut)
	if err != nil {
		anomalies |= AnomalyCheckOut
	}
	status, known := ParseBookingStatus(record.text(aliasBookingStatus))
	if !known {
		anomalies |= AnomalyStatus
	}
	paymentStatus, known := ParsePaymentStatus(record.text(aliasPaymentStatus))
	if !known {
		anomalies |= AnomalyPaymentStatus
	}
	gross, err := record.amount(aliasGrossAmount)
	if err != nil {
		gross = ZeroAmount()
		anomalies |= AnomalyGrossAmount
	}
	paymentLeft := ZeroAmount()
	if _, present := record.lookup(aliasPaymentLeft); present {
		paymentLeft, err = record.amount(aliasPaymentLeft)
		if err != nil {
			paymentLeft = ZeroAmount()
			anomalies |= AnomalyPaymentLeft
		}
	}
	if !anomalies.Has(AnomalyGrossAmount) && paymentLeft.Cmp(gross) > 0 {
		anomalies |= AnomalyPaymentLeftExceedsGross
	}
	return Booking{
		ID:            record.text(aliasBookingID),
		GuestName:     record.text(aliasGuestName),
		Phone:         record.text(aliasPhone),
		HotelID:       record.text(aliasHotelID),
		RoomID:        record.text(aliasRoomID),
		RoomNumber:    record.integer(aliasRoomNumber),
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Status:        status,
		PaymentStatus: paymentStatus,
		GrossAmount:   gross,
		PaymentLeft:   paymentLeft,
		Refundable:    record.boolean(aliasRefundable),
		Anomalies:     anomalies,
	}
}

func (record rawRecord) ledgerEntry() LedgerEntry {
	var anomalies Anomaly
	date, err := record.timestamp(aliasTxnDate)
	if err != nil {
		anomalies |= AnomalyDate
	}
	entryType, known := ParseEntryType(record.text(aliasEntryType))
	if !known {
		anomalies |= AnomalyEntryType
	}
	amount, err := record.amount(aliasAmount)
	if err != nil {
		amount = ZeroAmount()
		anomalies |= AnomalyAmount
	}
	balanceAfter, err := record.signedAmount(aliasBalanceAfter)
	if err != nil {
		balanceAfter = ZeroAmount()
		anomalies |= AnomalyBalanceAfter
	}
	return LedgerEntry{
		Sequence:      record.integer(aliasSequence),
		HotelID:       record.text(aliasHotelID),
		BookingID:     record.nullableText(aliasBookingID[:1]),
		Date:          date,
		Via:           record.text(aliasVia),
		TransactionID: record.text(aliasTransactionID),
		Type:          entryType,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		Anomalies:     anomalies,
	}
}

func (record rawRecord) transactionRequest() TransactionRequest {
	var anomalies Anomaly
	date, err := record.timestamp(aliasTxnDate)
	if err != nil {
		anomalies |= AnomalyDate
	}
	amount, err := record.amount(aliasAmount)
	if err != nil {
		amount = ZeroAmount()
		anomalies |= AnomalyAmount
	}
	status, known := ParseRequestStatus(record.text(aliasRequestStatus))
	if !known {
		anomalies |= AnomalyStatus
	}
	return TransactionRequest{
		Sequence:  record.integer(aliasSequence),
		HotelID:   record.text(aliasHotelID),
		Date:      date,
		Amount:    amount,
		Status:    status,
		Remark:    record.nullableText(aliasRemark),
		Anomalies: anomalies,
	}
}
