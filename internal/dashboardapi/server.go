// Package dashboardapi serves the hotel-owner dashboard over HTTP.
package dashboardapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/backend"
	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/session"
	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	contextKeySession = "dashboard_session"
	shutdownTimeout   = 5 * time.Second

	errorCodeUnauthorized       = "unauthorized"
	errorCodeInvalidPayload     = "invalid_payload"
	errorCodeInvalidRequest     = "invalid_request"
	errorCodeNotFound           = "not_found"
	errorCodeNoTransition       = "no_transition"
	errorCodeStaleTransition    = "stale_transition"
	errorCodeInsufficientFunds  = "insufficient_funds"
	errorCodeMissingBankDetails = "missing_bank_details"
	errorCodeBackendUnavailable = "backend_unavailable"
	errorCodeBackend            = "backend_error"
)

// Authenticator exchanges an email and one-time password for a backend token.
type Authenticator interface {
	RequestOTP(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, email string, otp string) (backend.Verification, error)
}

// Dependencies are the collaborators the HTTP handlers call into.
type Dependencies struct {
	Service       *dashboard.Service
	Sessions      *session.Manager
	Authenticator Authenticator
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func (deps Dependencies) validate() error {
	if deps.Service == nil {
		return fmt.Errorf("dashboard service is required")
	}
	if deps.Sessions == nil {
		return fmt.Errorf("session manager is required")
	}
	if deps.Authenticator == nil {
		return fmt.Errorf("authenticator is required")
	}
	return nil
}

// Run serves the dashboard API until ctx is cancelled. Persisted sessions are
// loaded before the listener starts and saved after it stops.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := deps.validate(); err != nil {
		return err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := deps.Sessions.Start(ctx); err != nil {
		return fmt.Errorf("session start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := deps.Sessions.Stop(stopCtx); err != nil {
			logger.Warn("session stop error", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine. cfg is expected to be validated.
func NewRouter(cfg Config, deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:        logger,
		service:       deps.Service,
		sessions:      deps.Sessions,
		authenticator: deps.Authenticator,
		cfg:           cfg,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.POST("/session/otp", handler.handleRequestOTP)
	api.POST("/session/verify", handler.handleVerifyOTP)

	authenticated := api.Group("")
	authenticated.Use(handler.requireSession)
	authenticated.GET("/session", handler.handleSession)
	authenticated.DELETE("/session", handler.handleSignOut)
	authenticated.GET("/bookings", handler.handleBookings)
	authenticated.GET("/bookings/active", handler.handleActiveBookings)
	authenticated.GET("/bookings/:id", handler.handleBookingDetails)
	authenticated.GET("/bookings/:id/action", handler.handleNextAction)
	authenticated.GET("/bookings/:id/intents", handler.handleTransitionHistory)
	authenticated.POST("/bookings/:id/transition", handler.handleTransition)
	authenticated.GET("/wallet/ledger", handler.handleLedger)
	authenticated.GET("/wallet/requests", handler.handleRequests)
	authenticated.POST("/wallet/withdraw", handler.handleWithdraw)
	authenticated.POST("/wallet/bank-details", handler.handleAddBankDetails)

	return router
}

type httpHandler struct {
	logger        *zap.Logger
	service       *dashboard.Service
	sessions      *session.Manager
	authenticator Authenticator
	cfg           Config
}

func (handler *httpHandler) requireSession(ctx *gin.Context) {
	sessionID, err := ctx.Cookie(handler.cfg.SessionCookieName)
	if err != nil || strings.TrimSpace(sessionID) == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	current, err := handler.sessions.Current(ctx.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) || errors.Is(err, session.ErrSessionNotFound) {
			handler.clearCookie(ctx)
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "session expired"))
			return
		}
		handler.logger.Error("session lookup failed", zap.Error(err))
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("session_error", "session unavailable"))
		return
	}
	ctx.Set(contextKeySession, current)
	ctx.Next()
}

func (handler *httpHandler) handleRequestOTP(ctx *gin.Context) {
	var request otpRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "email is required"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.BackendTimeout)
	defer cancel()
	message, err := handler.authenticator.RequestOTP(requestCtx, strings.TrimSpace(request.Email))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "sent", "message": message})
}

func (handler *httpHandler) handleVerifyOTP(ctx *gin.Context) {
	var request verifyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || strings.TrimSpace(request.OTP) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "email and otp are required"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.BackendTimeout)
	defer cancel()
	verification, err := handler.authenticator.VerifyOTP(requestCtx, strings.TrimSpace(request.Email), strings.TrimSpace(request.OTP))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	created, err := handler.sessions.Create(ctx.Request.Context(), verification)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	maxAge := int(time.Until(created.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(handler.cfg.SessionCookieName, created.ID, maxAge, "/", "", handler.cfg.SecureCookies, true)
	ctx.JSON(http.StatusOK, newSessionPayload(created))
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, newSessionPayload(currentSession(ctx)))
}

func (handler *httpHandler) handleSignOut(ctx *gin.Context) {
	if err := handler.sessions.End(ctx.Request.Context(), currentSession(ctx).ID); err != nil {
		handler.logger.Error("session end failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "sign out failed"))
		return
	}
	handler.clearCookie(ctx)
	ctx.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

func (handler *httpHandler) handleBookings(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	view, err := handler.service.Bookings(requestCtx, currentSession(ctx), dashboard.BookingQuery{
		Query:         ctx.Query("q"),
		Status:        ctx.Query("status"),
		PaymentStatus: ctx.Query("payment"),
		Sort:          ctx.Query("sort"),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (handler *httpHandler) handleActiveBookings(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	bookings, err := handler.service.ActiveBookings(requestCtx, currentSession(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": bookings, "total": len(bookings)})
}

func (handler *httpHandler) handleBookingDetails(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	view, err := handler.service.BookingDetails(requestCtx, currentSession(ctx), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (handler *httpHandler) handleNextAction(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	action, err := handler.service.NextAction(requestCtx, currentSession(ctx), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, action)
}

func (handler *httpHandler) handleTransition(ctx *gin.Context) {
	var request transitionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Action) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "action is required"))
		return
	}
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	result, err := handler.service.RequestTransition(requestCtx, currentSession(ctx), ctx.Param("id"), request.Action)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionPayload{
		BookingID:      result.Request.BookingID,
		From:           result.Request.From,
		Action:         result.Request.Action,
		IdempotencyKey: result.Request.IdempotencyKey.String(),
		Duplicate:      result.Duplicate,
	})
}

func (handler *httpHandler) handleTransitionHistory(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	intents, err := handler.service.TransitionHistory(requestCtx, currentSession(ctx), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]intentPayload, 0, len(intents))
	for _, intent := range intents {
		payload = append(payload, intentPayload{
			IdempotencyKey: intent.IdempotencyKey.String(),
			From:           intent.From,
			Action:         intent.Action,
			UserID:         intent.UserID,
			CreatedUnix:    intent.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"booking_id": strings.TrimSpace(ctx.Param("id")), "intents": payload})
}

func (handler *httpHandler) handleLedger(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	view, err := handler.service.Ledger(requestCtx, currentSession(ctx), ctx.Query("q"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (handler *httpHandler) handleRequests(ctx *gin.Context) {
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	view, err := handler.service.TransactionRequests(requestCtx, currentSession(ctx), dashboard.TransactionRequestFilter{
		Query:  ctx.Query("q"),
		Status: ctx.Query("status"),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (handler *httpHandler) handleWithdraw(ctx *gin.Context) {
	var request withdrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		if errors.Is(err, dashboard.ErrInvalidAmount) {
			handler.respondError(ctx, err)
			return
		}
		if !errors.Is(err, io.EOF) {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
			return
		}
	}
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	result, err := handler.service.Withdraw(requestCtx, currentSession(ctx), request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "requested", "withdrawal": result})
}

func (handler *httpHandler) handleAddBankDetails(ctx *gin.Context) {
	var request dashboard.BankDetails
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.backendContext(ctx)
	defer cancel()
	added, err := handler.service.AddBankDetails(requestCtx, currentSession(ctx), request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "added", "bank_details": added})
}

func (handler *httpHandler) backendContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.BackendTimeout)
}

func (handler *httpHandler) clearCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(handler.cfg.SessionCookieName, "", -1, "/", "", handler.cfg.SecureCookies, true)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("route", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

// mapError maps domain and backend errors onto an HTTP status and a stable code.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, dashboard.ErrMissingSession),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, errorCodeUnauthorized
	case errors.Is(err, dashboard.ErrInvalidSortKey),
		errors.Is(err, dashboard.ErrInvalidAmount),
		errors.Is(err, dashboard.ErrInvalidBookingID),
		errors.Is(err, dashboard.ErrInvalidAction),
		errors.Is(err, dashboard.ErrInvalidBankDetails):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, dashboard.ErrUnknownBooking),
		errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, dashboard.ErrNoTransition):
		return http.StatusConflict, errorCodeNoTransition
	case errors.Is(err, dashboard.ErrStaleTransition):
		return http.StatusConflict, errorCodeStaleTransition
	case errors.Is(err, dashboard.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, errorCodeInsufficientFunds
	case errors.Is(err, dashboard.ErrMissingBankDetails):
		return http.StatusUnprocessableEntity, errorCodeMissingBankDetails
	case errors.Is(err, backend.ErrCircuitOpen):
		return http.StatusServiceUnavailable, errorCodeBackendUnavailable
	default:
		return http.StatusBadGateway, errorCodeBackend
	}
}

func currentSession(ctx *gin.Context) dashboard.Session {
	value, ok := ctx.Get(contextKeySession)
	if !ok {
		return dashboard.Session{}
	}
	current, _ := value.(dashboard.Session)
	return current
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type otpRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type transitionRequest struct {
	Action string `json:"action"`
}

type withdrawRequest struct {
	Amount dashboard.Amount `json:"amount"`
}

type sessionPayload struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	UserID        int64  `json:"user_id"`
	ProfileExists bool   `json:"profile_exists"`
	ExpiresUnix   int64  `json:"expires"`
}

func newSessionPayload(current dashboard.Session) sessionPayload {
	return sessionPayload{
		Email:         current.Email,
		Role:          current.Role,
		UserID:        current.UserID,
		ProfileExists: current.ProfileExists,
		ExpiresUnix:   current.ExpiresAt.Unix(),
	}
}

type transitionPayload struct {
	BookingID      string                  `json:"booking_id"`
	From           dashboard.BookingStatus `json:"from"`
	Action         dashboard.Action        `json:"action"`
	IdempotencyKey string                  `json:"idempotency_key"`
	Duplicate      bool                    `json:"duplicate"`
}

type intentPayload struct {
	IdempotencyKey string                  `json:"idempotency_key"`
	From           dashboard.BookingStatus `json:"from"`
	Action         dashboard.Action        `json:"action"`
	UserID         int64                   `json:"user_id"`
	CreatedUnix    int64                   `json:"created"`
}
