package dsi

import "log"

// Logger is the minimal sink for the "logged at Warn/Debug and ignored"
// runtime-misbehaviour paths: unimplemented DMA start-modes, unknown AES
// modes, protected-slot writes, unknown I2C device ids, and similar guest
// misbehaviour that the core must tolerate rather than fail on.
type Logger interface {
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// stdLogger adapts the standard library logger to Logger. A nil
// DSiArgs.Logger selects nopLogger, not this type.
type stdLogger struct {
	l *log.Logger
}

func newStdLogger() *stdLogger {
	return &stdLogger{l: log.Default()}
}

func (s *stdLogger) Warnf(format string, args ...any) {
	s.l.Printf("WARN dsi: "+format, args...)
}

func (s *stdLogger) Debugf(format string, args ...any) {
	s.l.Printf("DEBUG dsi: "+format, args...)
}

// nopLogger discards everything; useful for tests that exercise guest
// misbehaviour paths without cluttering test output.
type nopLogger struct{}

func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Debugf(string, ...any) {}
