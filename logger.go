package mcrecover

// Logger is the logging interface used by a Card and the Scanner.
// A *logrus.Logger satisfies it.
//
// Generated mock using mockgen:
//  mockgen -source=logger.go -destination=logger_mock_test.go -package mcrecover
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
