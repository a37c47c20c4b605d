package ulogger

// ANSI codes used when logging to a terminal
const (
	colorRed    = 31
	colorGreen  = 32
	colorYellow = 33
	colorBlue   = 34
	colorBold   = 1
)

// Logger is the logging interface every component takes. Levels follow gocore: DEBUG, INFO, WARN, ERROR
// and FATAL.
type Logger interface {
	LogLevel() int
	SetLogLevel(level string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string, options ...Option) Logger
	Duplicate(options ...Option) Logger
}

// New creates a logger for the service using the backend selected with WithLoggerType.
func New(service string, options ...Option) Logger {
	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	if opts.loggerType == "gocore" {
		return NewGoCoreLogger(service, options...)
	}

	return NewZeroLogger(service, options...)
}
