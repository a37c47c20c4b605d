package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Options func(s *TraceOptions)

type TraceOptions struct {
	Histogram  prometheus.Observer
	Counter    prometheus.Counter
	Logger     ulogger.Logger
	LogMessage string
	LogArgs    []interface{}
	Tags       []attribute.KeyValue
}

// WithHistogram sets the prometheus histogram to be observed when the span is finished.
func WithHistogram(histogram prometheus.Observer) Options {
	return func(s *TraceOptions) {
		s.Histogram = histogram
	}
}

// WithCounter sets the prometheus counter to be incremented when the span is finished.
func WithCounter(counter prometheus.Counter) Options {
	return func(s *TraceOptions) {
		s.Counter = counter
	}
}

// WithLogMessage sets the logger and log message to be used when starting the span and when the span is finished.
// The log message is logged at the DEBUG level.
func WithLogMessage(logger ulogger.Logger, format string, args ...interface{}) Options {
	return func(s *TraceOptions) {
		s.Logger = logger
		s.LogMessage = format
		s.LogArgs = args
	}
}

func WithTag(key, value string) Options {
	return func(s *TraceOptions) {
		s.Tags = append(s.Tags, attribute.String(key, value))
	}
}

type UTracer struct {
	tracer trace.Tracer
}

// Tracer returns a tracer backed by the global otel tracer provider.
func Tracer(name string) *UTracer {
	return &UTracer{tracer: otel.Tracer(name)}
}

// Start starts a new span and returns the context carrying it, the span itself and a function that finishes
// the span. Passing an error to the finish function records it on the span.
func (u *UTracer) Start(ctx context.Context, name string, setOptions ...Options) (context.Context, trace.Span, func(...error)) {
	options := &TraceOptions{}
	for _, opt := range setOptions {
		opt(options)
	}

	start := time.Now()

	ctx, span := u.tracer.Start(ctx, name)
	if len(options.Tags) > 0 {
		span.SetAttributes(options.Tags...)
	}

	if options.Logger != nil && options.LogMessage != "" {
		options.Logger.Debugf(options.LogMessage, options.LogArgs...)
	}

	return ctx, span, func(errs ...error) {
		for _, err := range errs {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}

		span.End()

		if options.Histogram != nil {
			options.Histogram.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
		}

		if options.Counter != nil {
			options.Counter.Inc()
		}

		if options.Logger != nil && options.LogMessage != "" {
			done := fmt.Sprintf(" DONE in %s", time.Since(start))
			options.Logger.Debugf(options.LogMessage+done, options.LogArgs...)
		}
	}
}
