package ulogger

import (
	"github.com/ordishs/gocore"
)

// GoCoreLogger logs through gocore, which only writes to stdout.
type GoCoreLogger struct {
	*gocore.Logger
	skipFrame int
}

func NewGoCoreLogger(service string, options ...Option) *GoCoreLogger {
	if service == "" {
		service = "peerlogic"
	}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	return &GoCoreLogger{gocore.Log(service, gocore.NewLogLevelFromString(opts.logLevel)), opts.skip}
}

func (g *GoCoreLogger) New(service string, options ...Option) Logger {
	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	return &GoCoreLogger{
		gocore.Log(service, g.Logger.GetLogLevel()),
		opts.skip,
	}
}

func (g *GoCoreLogger) Duplicate(options ...Option) Logger {
	newLogger := &GoCoreLogger{g.Logger, g.skipFrame}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	if opts.skip != 0 {
		newLogger.skipFrame = opts.skip
	}

	return newLogger
}

// SetLogLevel is a noop, gocore fixes the level when the logger is created.
func (g *GoCoreLogger) SetLogLevel(_ string) {}
