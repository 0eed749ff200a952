package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with domain helpers
type Logger struct {
	*slog.Logger
}

// New builds a logger using LOG_LEVEL from the environment
func New() *Logger {
	return NewWithLevel(os.Getenv("LOG_LEVEL"))
}

// NewWithLevel builds a logger writing to stdout
func NewWithLevel(level string) *Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter builds a logger writing to w. Text output in gin debug mode, JSON otherwise.
func NewWithWriter(w io.Writer, level string) *Logger {
	lvl := getLogLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// HTTP logging

func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
	)
}

func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
	)
}

// Reservation logging

func (l *Logger) LogBookingCreated(ctx context.Context, bookingID, slotID, userID string, quantity int) {
	l.Logger.InfoContext(ctx,
		"Booking Created",
		slog.String("booking_id", bookingID),
		slog.String("slot_id", slotID),
		slog.String("user_id", userID),
		slog.Int("quantity", quantity),
	)
}

func (l *Logger) LogBookingCancelled(ctx context.Context, bookingID, slotID string, freed int) {
	l.Logger.InfoContext(ctx,
		"Booking Cancelled",
		slog.String("booking_id", bookingID),
		slog.String("slot_id", slotID),
		slog.Int("freed_quantity", freed),
	)
}

func (l *Logger) LogWaitlistJoined(ctx context.Context, entryID, slotID, userID string, position int) {
	l.Logger.InfoContext(ctx,
		"Waitlist Joined",
		slog.String("entry_id", entryID),
		slog.String("slot_id", slotID),
		slog.String("user_id", userID),
		slog.Int("position", position),
	)
}

func (l *Logger) LogWaitlistPromoted(ctx context.Context, entryID, bookingID, slotID string) {
	l.Logger.InfoContext(ctx,
		"Waitlist Promoted",
		slog.String("entry_id", entryID),
		slog.String("booking_id", bookingID),
		slog.String("slot_id", slotID),
	)
}

func (l *Logger) LogWaitlistExpired(ctx context.Context, entryID, slotID, reason string) {
	l.Logger.InfoContext(ctx,
		"Waitlist Expired",
		slog.String("entry_id", entryID),
		slog.String("slot_id", slotID),
		slog.String("reason", reason),
	)
}

// LogReservationConflict logs a retried or rejected slot transaction
func (l *Logger) LogReservationConflict(ctx context.Context, op, slotID string, attempt int, err error) {
	l.Logger.WarnContext(ctx,
		"Reservation Conflict",
		slog.String("op", op),
		slog.String("slot_id", slotID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

func (l *Logger) LogNotificationDropped(ctx context.Context, event, userID, reason string) {
	l.Logger.WarnContext(ctx,
		"Notification Dropped",
		slog.String("event", event),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
}

var defaultLogger = New()

// GetDefault returns the process-wide logger
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
	slog.SetDefault(logger.Logger)
}
