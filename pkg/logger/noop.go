package logger

// NoOpLogger implements Logger with no-op methods to avoid nil pointer panics.
// Use this when you need a logger instance but don't want any actual logging.
type NoOpLogger struct{}

func (l *NoOpLogger) Info(msg string, tags ...interface{})      {}
func (l *NoOpLogger) Infof(format string, args ...interface{})  {}
func (l *NoOpLogger) Debug(msg string, tags ...interface{})     {}
func (l *NoOpLogger) Debugf(format string, args ...interface{}) {}
func (l *NoOpLogger) Error(msg string, tags ...interface{})     {}
func (l *NoOpLogger) Errorf(format string, args ...interface{}) {}
func (l *NoOpLogger) Warn(msg string, tags ...interface{})      {}
func (l *NoOpLogger) Warnf(format string, args ...interface{})  {}
func (l *NoOpLogger) Fatal(msg string, tags ...interface{})     {}
func (l *NoOpLogger) Fatalf(format string, args ...interface{}) {}
func (l *NoOpLogger) With(tags ...interface{}) Logger           { return l }
func (l *NoOpLogger) Sync() error                               { return nil }

// NewNoOpLogger creates a new no-op logger instance
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// EnsureLogger returns the logger if not nil, otherwise returns a no-op logger.
// This is a convenience function to safely use optional logger parameters.
func EnsureLogger(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}
