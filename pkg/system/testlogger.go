package system

import (
	"go.uber.org/zap"
)

// NewTestLogger returns a development sugared logger without automatic
// stacktraces, for tests that have no *testing.T at hand.
func NewTestLogger() *zap.SugaredLogger {
	return NewTestZapLogger().Sugar()
}

// NewTestZapLogger is NewTestLogger without the sugar.
func NewTestZapLogger() *zap.Logger {
	logger, err := NewLogger(true)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
