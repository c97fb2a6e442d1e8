package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	headerAPIKey        = "x-api-key"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "

	pathRequestOTP          = "/otplogin/get-otp"
	pathVerifyOTP           = "/otplogin/verify-otp"
	pathAllBookings         = "/owner/dashboard/all-bookings"
	pathActiveBookings      = "/owner/dashboard/active-bookings"
	pathLedger              = "/owner/dashboard/ledger"
	pathFinancialSummary    = "/owner/dashboard/financial-summary"
	pathTransactionRequests = "/owner/dashboard/fetch_requests"
	pathBankDetails         = "/owner/dashboard/details"
	pathAddBankDetails      = "/owner/dashboard/add"
	pathWithdraw            = "/owner/dashboard/withdraw"
	pathBookingStatusFormat = "/owner/dashboard/booking/%s/status"
	pathBookingDetailsFmt   = "/owner/dashboard/%s/details"

	endpointBookingStatus  = "booking-status"
	endpointBookingDetails = "booking-details"

	messageNoBookings = "No bookings found"

	defaultTimeout          = 10 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultHalfOpenRequests = 1
	maxResponseBytes        = 8 << 20
	breakerName             = "stayvida-backend"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failed calls that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithCollector wires a metrics collector.
func WithCollector(collector Collector) Option {
	return func(client *Client) {
		if collector != nil {
			client.metrics = collector
		}
	}
}

// WithLogger wires a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// Client talks to the StayVida REST API on behalf of an explicit session.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	flights    singleflight.Group
	metrics    Collector
	logger     *zap.Logger
}

var _ dashboard.Backend = (*Client)(nil)

// NewClient validates the configuration and builds a Client.
func NewClient(cfg Config, options ...Option) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = defaultHalfOpenRequests
	}
	client := &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    NoOpCollector{},
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	threshold := cfg.FailureThreshold
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			client.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			client.metrics.RecordCircuitState(name, circuitState(to))
		},
	})
	return client, nil
}

func circuitState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateOpen:
		return CircuitOpen
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// Verification is the backend's answer to an OTP verification.
type Verification struct {
	Success       bool   `json:"success"`
	Token         string `json:"token"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Message       string `json:"message"`
	ProfileExists bool   `json:"profileExists"`
	UserID        int64  `json:"userID"`
}

// RequestOTP asks the backend to send a one-time password to email and
// returns the backend's plain-text acknowledgement.
func (client *Client) RequestOTP(ctx context.Context, email string) (string, error) {
	result, err := client.send(ctx, nil, http.MethodPost, pathRequestOTP, pathRequestOTP, nil, map[string]string{"email": email})
	if err != nil {
		return "", err
	}
	if err := result.err(pathRequestOTP); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(result.body)), nil
}

// VerifyOTP exchanges an email and one-time password for a backend token.
func (client *Client) VerifyOTP(ctx context.Context, email string, otp string) (Verification, error) {
	result, err := client.send(ctx, nil, http.MethodPost, pathVerifyOTP, pathVerifyOTP, nil, map[string]string{"email": email, "otp": otp})
	if err != nil {
		return Verification{}, err
	}
	if err := result.err(pathVerifyOTP); err != nil {
		return Verification{}, err
	}
	var verification Verification
	if err := json.Unmarshal(result.body, &verification); err != nil {
		return Verification{}, dashboard.WrapError(errorOperation, pathVerifyOTP, errorCodeDecode, fmt.Errorf("%w: %v", dashboard.ErrMalformedPayload, err))
	}
	if !verification.Success || strings.TrimSpace(verification.Token) == "" {
		return Verification{}, dashboard.WrapError(errorOperation, pathVerifyOTP, errorCodeUnauthorized, fmt.Errorf("%w: %s", ErrUnauthorized, verification.Message))
	}
	return verification, nil
}

// FetchBookings returns every booking of the owner's hotels. The backend
// answers 404 "No bookings found" for an empty list.
func (client *Client) FetchBookings(ctx context.Context, session dashboard.Session) ([]dashboard.Booking, error) {
	result, err := client.get(ctx, session, pathAllBookings, pathAllBookings, nil)
	if err != nil {
		return nil, err
	}
	if result.status == http.StatusNotFound && result.message() == messageNoBookings {
		return []dashboard.Booking{}, nil
	}
	if err := result.err(pathAllBookings); err != nil {
		return nil, err
	}
	return decode(pathAllBookings, result.body, dashboard.DecodeBookings)
}

// FetchBookingDetails returns one booking with its fee breakdown.
func (client *Client) FetchBookingDetails(ctx context.Context, session dashboard.Session, bookingID string) (dashboard.BookingDetails, error) {
	path := fmt.Sprintf(pathBookingDetailsFmt, url.PathEscape(bookingID))
	result, err := client.get(ctx, session, path, endpointBookingDetails, nil)
	if err != nil {
		return dashboard.BookingDetails{}, err
	}
	if err := result.err(endpointBookingDetails); err != nil {
		return dashboard.BookingDetails{}, err
	}
	return decode(endpointBookingDetails, result.body, dashboard.DecodeBookingDetails)
}

// FetchActiveBookings returns the bookings the backend considers active.
func (client *Client) FetchActiveBookings(ctx context.Context, session dashboard.Session) ([]dashboard.Booking, error) {
	result, err := client.get(ctx, session, pathActiveBookings, pathActiveBookings, nil)
	if err != nil {
		return nil, err
	}
	if result.status == http.StatusNotFound {
		return []dashboard.Booking{}, nil
	}
	if err := result.err(pathActiveBookings); err != nil {
		return nil, err
	}
	return decode(pathActiveBookings, result.body, dashboard.DecodeBookings)
}

// FetchLedger returns the wallet ledger.
func (client *Client) FetchLedger(ctx context.Context, session dashboard.Session) ([]dashboard.LedgerEntry, error) {
	result, err := client.get(ctx, session, pathLedger, pathLedger, nil)
	if err != nil {
		return nil, err
	}
	if result.status == http.StatusNotFound {
		return []dashboard.LedgerEntry{}, nil
	}
	if err := result.err(pathLedger); err != nil {
		return nil, err
	}
	return decode(pathLedger, result.body, dashboard.DecodeLedgerEntries)
}

// FetchFinancialSummary returns the server-of-record totals, or nil when the
// backend has none.
func (client *Client) FetchFinancialSummary(ctx context.Context, session dashboard.Session) (*dashboard.FinancialSummary, error) {
	result, err := client.get(ctx, session, pathFinancialSummary, pathFinancialSummary, nil)
	if err != nil {
		return nil, err
	}
	if result.status == http.StatusNotFound {
		return nil, nil
	}
	if err := result.err(pathFinancialSummary); err != nil {
		return nil, err
	}
	return decode(pathFinancialSummary, result.body, dashboard.DecodeFinancialSummary)
}

// FetchTransactionRequests returns withdrawal requests, optionally narrowed by status.
func (client *Client) FetchTransactionRequests(ctx context.Context, session dashboard.Session, status dashboard.RequestStatus) ([]dashboard.TransactionRequest, error) {
	var query url.Values
	if !dashboard.IsNoConstraint(status.String()) {
		query = url.Values{"status": []string{status.String()}}
	}
	result, err := client.get(ctx, session, pathTransactionRequests, pathTransactionRequests, query)
	if err != nil {
		return nil, err
	}
	if result.status == http.StatusNotFound {
		return []dashboard.TransactionRequest{}, nil
	}
	if err := result.err(pathTransactionRequests); err != nil {
		return nil, err
	}
	return decode(pathTransactionRequests, result.body, dashboard.DecodeTransactionRequests)
}

// FetchBankDetails returns the registered payout destinations.
func (client *Client) FetchBankDetails(ctx context.Context, session dashboard.Session) ([]dashboard.BankDetails, error) {
	result, err := client.get(ctx, session, pathBankDetails, pathBankDetails, nil)
	if err != nil {
		return nil, err
	}
	if result.status == http.StatusNotFound {
		return []dashboard.BankDetails{}, nil
	}
	if err := result.err(pathBankDetails); err != nil {
		return nil, err
	}
	return decode(pathBankDetails, result.body, dashboard.DecodeBankDetails)
}

type bankDetailsPayload struct {
	AccountNumber string `json:"bank_account_no,omitempty"`
	IFSC          string `json:"ifsc_code,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	UPI           string `json:"upi_id,omitempty"`
}

// AddBankDetails registers a payout destination. Only the populated fields are sent.
func (client *Client) AddBankDetails(ctx context.Context, session dashboard.Session, details dashboard.BankDetails) error {
	payload := bankDetailsPayload{
		AccountNumber: details.AccountNumber,
		IFSC:          details.IFSC,
		BankName:      details.BankName,
		UPI:           details.UPI,
	}
	result, err := client.send(ctx, &session, http.MethodPost, pathAddBankDetails, pathAddBankDetails, nil, payload)
	if err != nil {
		return err
	}
	return result.err(pathAddBankDetails)
}

// UpdateBookingStatus asks the backend to apply a status transition.
func (client *Client) UpdateBookingStatus(ctx context.Context, session dashboard.Session, request dashboard.StatusUpdateRequest) error {
	path := fmt.Sprintf(pathBookingStatusFormat, url.PathEscape(request.BookingID))
	query := url.Values{"status": []string{request.Action.String()}}
	result, err := client.send(ctx, &session, http.MethodPut, path, endpointBookingStatus, query, nil)
	if err != nil {
		return err
	}
	return result.err(endpointBookingStatus)
}

// RequestWithdrawal submits a payout request.
func (client *Client) RequestWithdrawal(ctx context.Context, session dashboard.Session, amount dashboard.Amount) error {
	result, err := client.send(ctx, &session, http.MethodPost, pathWithdraw, pathWithdraw, nil, map[string]dashboard.Amount{"amount": amount})
	if err != nil {
		return err
	}
	return result.err(pathWithdraw)
}

type response struct {
	status int
	body   []byte
}

// err maps a non-2xx status onto the package error values.
func (result response) err(endpoint string) error {
	switch {
	case result.status >= 200 && result.status < 300:
		return nil
	case result.status == http.StatusUnauthorized || result.status == http.StatusForbidden:
		return dashboard.WrapError(errorOperation, endpoint, errorCodeUnauthorized, fmt.Errorf("%w: status %d", ErrUnauthorized, result.status))
	case result.status == http.StatusNotFound:
		return dashboard.WrapError(errorOperation, endpoint, errorCodeNotFound, fmt.Errorf("%w: %s", ErrNotFound, result.message()))
	default:
		return dashboard.WrapError(errorOperation, endpoint, errorCodeUpstream, fmt.Errorf("%w: status %d: %s", ErrUpstream, result.status, result.message()))
	}
}

// message extracts the backend's "message" field, falling back to the raw body.
func (result response) message() string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(result.body, &envelope); err == nil && envelope.Message != "" {
		return strings.TrimSpace(envelope.Message)
	}
	return strings.TrimSpace(string(result.body))
}

func decode[T any](endpoint string, body []byte, decoder func([]byte) (T, error)) (T, error) {
	value, err := decoder(body)
	if err != nil {
		var zero T
		return zero, dashboard.WrapError(errorOperation, endpoint, errorCodeDecode, err)
	}
	return value, nil
}

// get collapses concurrent identical reads for the same session into one request.
func (client *Client) get(ctx context.Context, session dashboard.Session, path string, endpoint string, query url.Values) (response, error) {
	key := strings.Join([]string{session.Token, path, query.Encode()}, "\x00")
	channel := client.flights.DoChan(key, func() (interface{}, error) {
		return client.send(context.WithoutCancel(ctx), &session, http.MethodGet, path, endpoint, query, nil)
	})
	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case result := <-channel:
		if result.Shared {
			client.metrics.RecordCollapsed(endpoint)
		}
		if result.Err != nil {
			return response{}, result.Err
		}
		return result.Val.(response), nil
	}
}

// send executes one request through the circuit breaker. Transport failures
// and 5xx answers count against the breaker; other statuses are returned to
// the caller for mapping.
func (client *Client) send(ctx context.Context, session *dashboard.Session, method string, path string, endpoint string, query url.Values, payload any) (response, error) {
	if session != nil && strings.TrimSpace(session.Token) == "" {
		return response{}, dashboard.ErrMissingSession
	}
	started := time.Now()
	value, err := client.breaker.Execute(func() (interface{}, error) {
		result, err := client.roundTrip(ctx, session, method, path, query, payload)
		if err != nil {
			return nil, err
		}
		if result.status >= http.StatusInternalServerError {
			return result, result.err(endpoint)
		}
		return result, nil
	})
	duration := time.Since(started)
	if err != nil {
		outcome := OutcomeServerError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = OutcomeCircuitOpen
			err = dashboard.WrapError(errorOperation, endpoint, errorCodeCircuitOpen, fmt.Errorf("%w: %v", ErrCircuitOpen, err))
		case !errors.Is(err, ErrUpstream):
			outcome = OutcomeTransport
			err = dashboard.WrapError(errorOperation, endpoint, errorCodeTransport, fmt.Errorf("%w: %v", ErrUpstream, err))
		}
		client.metrics.RecordRequest(endpoint, outcome, duration)
		client.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return response{}, err
	}
	result := value.(response)
	outcome := OutcomeSuccess
	if result.status >= http.StatusBadRequest {
		outcome = OutcomeClientError
	}
	client.metrics.RecordRequest(endpoint, outcome, duration)
	client.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", result.status),
		zap.Duration("duration", duration),
	)
	return result, nil
}

func (client *Client) roundTrip(ctx context.Context, session *dashboard.Session, method string, path string, query url.Values, payload any) (response, error) {
	target := client.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return response{}, err
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return response{}, err
	}
	request.Header.Set(headerContentType, contentTypeJSON)
	request.Header.Set(headerAPIKey, client.apiKey)
	if session != nil {
		request.Header.Set(headerAuthorization, bearerPrefix+session.Token)
	}
	httpResponse, err := client.httpClient.Do(request)
	if err != nil {
		return response{}, err
	}
	defer httpResponse.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBytes))
	if err != nil {
		return response{}, err
	}
	return response{status: httpResponse.StatusCode, body: data}, nil
}
