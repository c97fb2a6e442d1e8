package dashboardapi

import (
	"context"
	"time"

	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ZapOperationLogger forwards service operation logs to zap.
type ZapOperationLogger struct {
	logger *zap.Logger
}

var _ dashboard.OperationLogger = (*ZapOperationLogger)(nil)

// NewZapOperationLogger wraps logger; a nil logger discards entries.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry dashboard.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.Int64("user_id", entry.UserID),
		zap.String("status", entry.Status),
		zap.Int("records", entry.Records),
	}
	if entry.BookingID != "" {
		fields = append(fields, zap.String("booking_id", entry.BookingID))
	}
	if entry.Anomalies > 0 {
		fields = append(fields, zap.Int("anomalies", entry.Anomalies))
	}
	switch {
	case entry.Error != nil:
		operationLogger.logger.Warn("dashboard operation failed", append(fields, zap.Error(entry.Error))...)
	case entry.Inconsistent:
		operationLogger.logger.Warn("ledger disagrees with summary", fields...)
	default:
		operationLogger.logger.Info("dashboard operation", fields...)
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Info("http request",
			zap.String("method", ctx.Request.Method),
			zap.String("route", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		)
	}
}
