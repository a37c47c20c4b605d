package tracing

import (
	"context"
	"fmt"
	"testing"

	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type lineLogger struct {
	lastLog string
}

func newLineLogger() *lineLogger {
	return &lineLogger{}
}

func (l *lineLogger) New(service string, options ...ulogger.Option) ulogger.Logger {
	return l
}
func (l *lineLogger) Duplicate(options ...ulogger.Option) ulogger.Logger {
	return l
}
func (l *lineLogger) LogLevel() int {
	return 0
}
func (l *lineLogger) SetLogLevel(level string) {}

func (l *lineLogger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", format, args...)
}

func (l *lineLogger) Infof(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *lineLogger) Warnf(format string, args ...interface{}) {
	l.log("WARN", format, args...)
}

func (l *lineLogger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *lineLogger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL", format, args...)
}

func (l *lineLogger) log(_ string, format string, args ...interface{}) {
	l.lastLog = fmt.Sprintf(format, args...)
}

func TestTracing(t *testing.T) {
	logger := newLineLogger()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracing_test_counter"})

	_, _, deferFn := Tracer("test").Start(
		context.Background(),
		"TestTracing",
		WithCounter(counter),
		WithLogMessage(
			logger,
			"%s %s",
			"hello",
			"world",
		),
	)

	assert.Equal(t, "hello world", logger.lastLog)

	deferFn()

	assert.Contains(t, logger.lastLog, "hello world DONE in")
	assert.InDelta(t, 1, testutil.ToFloat64(counter), 0)
}

func TestTracingRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(sr))

	tracer := &UTracer{tracer: tp.Tracer("test")}

	_, _, finish := tracer.Start(context.Background(), "ok", WithTag("peer", "1"))
	finish()

	_, _, finish = tracer.Start(context.Background(), "failing")
	finish(errors.NewProcessingError("boom"))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "ok", spans[0].Name())
	require.Len(t, spans[0].Attributes(), 1)
	assert.Equal(t, "1", spans[0].Attributes()[0].Value.AsString())

	assert.Equal(t, "failing", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
