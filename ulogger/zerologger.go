package ulogger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// callerWidth is the column width of the file:line part of pretty log lines
const callerWidth = 32

var zeroLevels = map[string]zerolog.Level{
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"FATAL": zerolog.FatalLevel,
	"PANIC": zerolog.PanicLevel,
}

var levelColors = map[string]int{
	"debug": colorBlue,
	"info":  colorGreen,
	"warn":  colorYellow,
	"error": colorRed,
	"fatal": colorRed,
	"panic": colorRed,
}

type ZLoggerWrapper struct {
	zerolog.Logger
	service string
	w       io.Writer
}

// NewZeroLogger creates a zerolog backed logger. Output is a human readable console format unless
// PRETTY_LOGS is switched off, in which case every line is a json object.
func NewZeroLogger(service string, options ...Option) *ZLoggerWrapper {
	if service == "" {
		service = "peerlogic"
	}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	var out io.Writer = opts.writer

	skip := zerolog.CallerSkipFrameCount + 2
	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		out = consoleWriter(opts.writer, service)
		skip = zerolog.CallerSkipFrameCount + 1
	}

	z := &ZLoggerWrapper{
		Logger:  zerolog.New(out).With().CallerWithSkipFrameCount(skip + opts.skip).Timestamp().Logger(),
		service: service,
		w:       opts.writer,
	}

	z.SetLogLevel(opts.logLevel)

	return z
}

func consoleWriter(writer io.Writer, service string) zerolog.ConsoleWriter {
	noColor := true
	if f, ok := writer.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	return zerolog.ConsoleWriter{
		Out:        writer,
		NoColor:    noColor,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			level := fmt.Sprintf("%s", i)
			return fmt.Sprintf("| %s|", colorize(strings.ToUpper(fmt.Sprintf("%-6s", level)), levelColors[level], noColor))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("| %-6s| %s", service, i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
		FormatCaller: func(i interface{}) string {
			c, _ := i.(string)
			if c == "" {
				return ""
			}

			return colorize(fmt.Sprintf("%-*s", callerWidth, shortCaller(c)), colorBold, noColor)
		},
		FormatTimestamp: func(i interface{}) string {
			ts, err := time.Parse(time.RFC3339, fmt.Sprintf("%s", i))
			if err != nil {
				return fmt.Sprintf("%s", i)
			}

			return ts.Format("15:04:05")
		},
	}
}

// shortCaller keeps as many trailing path elements of the caller as fit in callerWidth.
func shortCaller(c string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, c); err == nil {
			c = rel
		}
	}

	parts := strings.Split(c, "/")
	short := parts[len(parts)-1]

	for i := len(parts) - 2; i >= 0; i-- {
		if len(short)+len(parts[i])+1 > callerWidth {
			break
		}

		short = parts[i] + "/" + short
	}

	return short
}

func (z *ZLoggerWrapper) New(service string, options ...Option) Logger {
	// the child starts from the parent's writer and level
	o := []Option{
		WithWriter(z.w),
		WithLevel(strings.ToUpper(z.Logger.GetLevel().String())),
	}

	return NewZeroLogger(service, append(o, options...)...)
}

// Duplicate returns a copy sharing the writer and service, optionally at another level.
func (z *ZLoggerWrapper) Duplicate(options ...Option) Logger {
	opts := &Options{logLevel: z.Logger.GetLevel().String()}
	for _, o := range options {
		o(opts)
	}

	n := &ZLoggerWrapper{Logger: z.Logger, service: z.service, w: z.w}
	n.SetLogLevel(opts.logLevel)

	return n
}

// SetLogLevel accepts the gocore level names in any case. Unknown names select INFO.
func (z *ZLoggerWrapper) SetLogLevel(logLevel string) {
	level, ok := zeroLevels[strings.ToUpper(logLevel)]
	if !ok {
		level = zerolog.InfoLevel
	}

	z.Logger = z.Logger.Level(level)
}

func (z *ZLoggerWrapper) LogLevel() int {
	switch z.Logger.GetLevel() {
	case zerolog.DebugLevel:
		return int(gocore.DEBUG)
	case zerolog.WarnLevel:
		return int(gocore.WARN)
	case zerolog.ErrorLevel:
		return int(gocore.ERROR)
	case zerolog.FatalLevel:
		return int(gocore.FATAL)
	default:
		return int(gocore.INFO)
	}
}

func (z *ZLoggerWrapper) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Fatalf(format string, args ...interface{}) {
	z.Logger.Fatal().Msgf(format, args...)
}

// colorize wraps s in the ANSI code c. NO_COLOR in the environment turns colors off everywhere.
func colorize(s string, c int, disabled bool) string {
	if disabled || c == 0 || os.Getenv("NO_COLOR") != "" {
		return s
	}

	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}
