package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/spf13/cobra"
)

const (
	flagLedgerFile  = "ledger"
	flagSummaryFile = "summary"
	flagRequests    = "requests"
)

var errInconsistent = errors.New("ledger is inconsistent")

type report struct {
	Totals   dashboard.WalletTotals   `json:"totals"`
	Agrees   bool                     `json:"agrees"`
	Requests *dashboard.RequestTotals `json:"requests,omitempty"`
}

func main() {
	cmd := newRootCommand(os.Stdout)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgercheck: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(output io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledgercheck",
		Short:         "Reconcile a saved wallet ledger against its financial summary",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledgerPath, _ := cmd.Flags().GetString(flagLedgerFile)
			summaryPath, _ := cmd.Flags().GetString(flagSummaryFile)
			requestsPath, _ := cmd.Flags().GetString(flagRequests)
			return run(output, ledgerPath, summaryPath, requestsPath)
		},
	}
	cmd.Flags().String(flagLedgerFile, "", "path to a ledger response body (required)")
	cmd.Flags().String(flagSummaryFile, "", "path to a financial-summary response body")
	cmd.Flags().String(flagRequests, "", "path to a fetch_requests response body")
	_ = cmd.MarkFlagRequired(flagLedgerFile)
	return cmd
}

func run(output io.Writer, ledgerPath string, summaryPath string, requestsPath string) error {
	ledgerPayload, err := os.ReadFile(ledgerPath)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	entries, err := dashboard.DecodeLedgerEntries(ledgerPayload)
	if err != nil {
		return fmt.Errorf("decode ledger: %w", err)
	}
	var summary *dashboard.FinancialSummary
	if summaryPath != "" {
		summaryPayload, err := os.ReadFile(summaryPath)
		if err != nil {
			return fmt.Errorf("read summary: %w", err)
		}
		summary, err = dashboard.DecodeFinancialSummary(summaryPayload)
		if err != nil {
			return fmt.Errorf("decode summary: %w", err)
		}
	}
	totals := dashboard.ResolveWalletTotals(summary, entries)
	result := report{Totals: totals, Agrees: totals.Agrees()}
	if requestsPath != "" {
		requestsPayload, err := os.ReadFile(requestsPath)
		if err != nil {
			return fmt.Errorf("read requests: %w", err)
		}
		requests, err := dashboard.DecodeTransactionRequests(requestsPayload)
		if err != nil {
			return fmt.Errorf("decode requests: %w", err)
		}
		requestTotals := dashboard.SumTransactionRequests(requests)
		result.Requests = &requestTotals
	}

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}
	if !result.Agrees {
		if !totals.Check.Consistent {
			return fmt.Errorf("%w: first mismatch at entry %d", errInconsistent, totals.Check.FirstMismatch)
		}
		return fmt.Errorf("%w: summary disagrees with ledger", errInconsistent)
	}
	return nil
}
