package dashboard

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// LedgerAggregate is the client-side summary of a ledger feed.
type LedgerAggregate struct {
	TotalIncome      Amount `json:"total_income"`
	TotalWithdraw    Amount `json:"total_withdraw"`
	Balance          Amount `json:"balance"`
	LastBalanceAfter Amount `json:"last_balance_after"`
	Entries          int    `json:"entries"`
	// Consistent is false when a running balance does not follow from the
	// previous one, or when the derived balance disagrees with the last entry.
	Consistent bool `json:"consistent"`
	// FirstMismatch is the sequence number of the first entry that broke the
	// running balance chain, or -1.
	FirstMismatch int64 `json:"first_mismatch"`
	Anomalies     int   `json:"anomalies"`
}

// AggregateLedger derives income, withdrawals and balance from a ledger feed
// and cross-checks them against the recorded running balances.
//
// The feed is ordered by sequence on a copy before the check, so newest-first
// feeds reconcile the same as oldest-first ones.
func AggregateLedger(entries []LedgerEntry) LedgerAggregate {
	aggregate := LedgerAggregate{
		TotalIncome:      ZeroAmount(),
		TotalWithdraw:    ZeroAmount(),
		Balance:          ZeroAmount(),
		LastBalanceAfter: ZeroAmount(),
		Entries:          len(entries),
		Consistent:       true,
		FirstMismatch:    -1,
	}
	if len(entries) == 0 {
		return aggregate
	}
	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(left, right LedgerEntry) int {
		return cmp.Compare(left.Sequence, right.Sequence)
	})

	running := ZeroAmount()
	for _, entry := range ordered {
		if entry.Anomalies != 0 {
			aggregate.Anomalies++
		}
		switch entry.Type {
		case EntryCredit:
			aggregate.TotalIncome = aggregate.TotalIncome.Add(entry.Amount)
		case EntryWithdraw:
			aggregate.TotalWithdraw = aggregate.TotalWithdraw.Add(entry.Amount)
		}
		running = running.Add(entry.SignedAmount())
		if aggregate.Consistent && !running.Equal(entry.BalanceAfter) {
			aggregate.Consistent = false
			aggregate.FirstMismatch = entry.Sequence
		}
		// Continue the chain from the recorded balance so one bad entry is reported once.
		running = entry.BalanceAfter
	}
	aggregate.Balance = aggregate.TotalIncome.Sub(aggregate.TotalWithdraw)
	aggregate.LastBalanceAfter = ordered[len(ordered)-1].BalanceAfter
	if !aggregate.Balance.Equal(aggregate.LastBalanceAfter) {
		aggregate.Consistent = false
	}
	return aggregate
}

// WalletTotals are the figures shown on the wallet summary cards.
type WalletTotals struct {
	TotalIncome    Amount          `json:"total_income"`
	TotalWithdrawn Amount          `json:"total_withdrawn"`
	Balance        Amount          `json:"balance"`
	Source         string          `json:"source"`
	Check          LedgerAggregate `json:"check"`
}

// Agrees reports whether the displayed totals match the ledger-derived check.
func (totals WalletTotals) Agrees() bool {
	return totals.Check.Consistent &&
		totals.TotalIncome.Equal(totals.Check.TotalIncome) &&
		totals.TotalWithdrawn.Equal(totals.Check.TotalWithdraw) &&
		totals.Balance.Equal(totals.Check.Balance)
}

// ResolveWalletTotals prefers the server-of-record summary and falls back to
// ledger aggregation when the summary is unavailable. Totals always cover the
// full ledger, never a searched subset.
func ResolveWalletTotals(summary *FinancialSummary, entries []LedgerEntry) WalletTotals {
	check := AggregateLedger(entries)
	if summary != nil {
		return WalletTotals{
			TotalIncome:    summary.TotalIncome,
			TotalWithdrawn: summary.TotalWithdrawn,
			Balance:        summary.Balance,
			Source:         WalletSourceServer,
			Check:          check,
		}
	}
	return WalletTotals{
		TotalIncome:    check.TotalIncome,
		TotalWithdrawn: check.TotalWithdraw,
		Balance:        check.Balance,
		Source:         WalletSourceLedger,
		Check:          check,
	}
}

// RequestTotals are per-status subtotals of withdrawal requests.
type RequestTotals struct {
	Approved Amount `json:"approved"`
	Pending  Amount `json:"pending"`
	Rejected Amount `json:"rejected"`
}

// SumTransactionRequests totals the given (possibly filtered) requests by status.
func SumTransactionRequests(requests []TransactionRequest) RequestTotals {
	totals := RequestTotals{Approved: ZeroAmount(), Pending: ZeroAmount(), Rejected: ZeroAmount()}
	for _, request := range requests {
		switch request.Status {
		case RequestStatusApproved:
			totals.Approved = totals.Approved.Add(request.Amount)
		case RequestStatusPending:
			totals.Pending = totals.Pending.Add(request.Amount)
		case RequestStatusRejected:
			totals.Rejected = totals.Rejected.Add(request.Amount)
		}
	}
	return totals
}

// ValidateWithdrawal checks a payout request against the available balance.
func ValidateWithdrawal(amount Amount, available Amount, hasBankDetails bool) error {
	if !hasBankDetails {
		return ErrMissingBankDetails
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if amount.Cmp(available) > 0 {
		return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientFunds, amount, available)
	}
	return nil
}

// NormalizeBankDetails trims a payout destination and checks it is complete:
// either a UPI id, or account number, IFSC code and bank name together. The
// IFSC code is upper-cased.
func NormalizeBankDetails(details BankDetails) (BankDetails, error) {
	normalized := BankDetails{
		AccountNumber: strings.TrimSpace(details.AccountNumber),
		IFSC:          strings.ToUpper(strings.TrimSpace(details.IFSC)),
		UPI:           strings.TrimSpace(details.UPI),
		BankName:      strings.TrimSpace(details.BankName),
	}
	bankFields := 0
	for _, field := range []string{normalized.AccountNumber, normalized.IFSC, normalized.BankName} {
		if field != "" {
			bankFields++
		}
	}
	switch {
	case bankFields == 3:
		return normalized, nil
	case bankFields == 0 && normalized.UPI != "":
		return normalized, nil
	case bankFields == 0:
		return BankDetails{}, fmt.Errorf("%w: account or upi id required", ErrInvalidBankDetails)
	default:
		return BankDetails{}, fmt.Errorf("%w: account number, ifsc code and bank name are required together", ErrInvalidBankDetails)
	}
}
