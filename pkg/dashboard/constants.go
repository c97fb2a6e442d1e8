package dashboard

const (
	operationListBookings       = "list_bookings"
	operationListActiveBookings = "list_active_bookings"
	operationLedger             = "ledger"
	operationTransactionRequest = "transaction_requests"
	operationNextAction         = "next_action"
	operationBookingDetails     = "booking_details"
	operationTransition         = "transition"
	operationTransitionHistory  = "transition_history"
	operationWithdraw           = "withdraw"
	operationAddBankDetails     = "add_bank_details"

	operationStatusOK        = "ok"
	operationStatusError     = "error"
	operationStatusDuplicate = "duplicate"

	idempotencyKeyDelimiter = ":"

	// FilterAll is the categorical sentinel meaning "no constraint".
	FilterAll = "all"
	// FilterAllUpper is the upper-case spelling used by the wallet request filter.
	FilterAllUpper = "ALL"

	transactionIDUnassigned = "NA"

	// WalletSourceServer marks totals taken from the server-of-record summary.
	WalletSourceServer = "server"
	// WalletSourceLedger marks totals derived from the ledger feed.
	WalletSourceLedger = "ledger"
)
