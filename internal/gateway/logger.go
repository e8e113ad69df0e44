package gateway

import (
	"pulse-chat/pkg/logger"

	"go.uber.org/zap"
)

// eventLogger writes structured gateway events tagged with the connection.
type eventLogger struct {
	logger *zap.Logger
}

func newEventLogger(l *logger.Logger) *eventLogger {
	if l == nil {
		l = logger.NewNop()
	}
	return &eventLogger{logger: l.Named("gateway")}
}

func (l *eventLogger) fields(event, userID, connID string, extra []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID),
		zap.String("conn_id", connID),
	}, extra...)
}

func (l *eventLogger) Info(event, userID, connID string, fields ...zap.Field) {
	l.logger.Info("gateway_event", l.fields(event, userID, connID, fields)...)
}

func (l *eventLogger) Warn(event, userID, connID string, fields ...zap.Field) {
	l.logger.Warn("gateway_warning", l.fields(event, userID, connID, fields)...)
}

func (l *eventLogger) Error(event, userID, connID string, err error, fields ...zap.Field) {
	l.logger.Error("gateway_error", l.fields(event, userID, connID, append(fields, zap.Error(err)))...)
}
