package ulogger_test

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/ordishs/gocore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("zerolog by default", func(t *testing.T) {
		var buf bytes.Buffer

		logger := ulogger.New("test", ulogger.WithWriter(&buf))
		require.IsType(t, &ulogger.ZLoggerWrapper{}, logger)
	})

	t.Run("gocore", func(t *testing.T) {
		logger := ulogger.New("test", ulogger.WithLoggerType("gocore"))
		require.IsType(t, &ulogger.GoCoreLogger{}, logger)
	})
}

func TestZeroLogger_Levels(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.NewZeroLogger("netproc", ulogger.WithWriter(&buf), ulogger.WithLevel("WARN"))
	assert.Equal(t, int(gocore.WARN), logger.LogLevel())

	logger.Infof("hidden %d", 1)
	assert.NotContains(t, buf.String(), "hidden 1")

	logger.Warnf("visible %d", 2)
	assert.Contains(t, buf.String(), "visible 2")

	logger.SetLogLevel("debug")
	assert.Equal(t, int(gocore.DEBUG), logger.LogLevel())

	logger.Debugf("debugging %s", "peer")
	assert.Contains(t, buf.String(), "debugging peer")
}

func TestZeroLogger_Duplicate(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.NewZeroLogger("netproc", ulogger.WithWriter(&buf), ulogger.WithLevel("INFO"))
	dup := logger.Duplicate(ulogger.WithLevel("ERROR"))

	assert.Equal(t, int(gocore.INFO), logger.LogLevel())
	assert.Equal(t, int(gocore.ERROR), dup.LogLevel())

	dup.Warnf("dropped")
	assert.NotContains(t, buf.String(), "dropped")

	logger.Warnf("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestZeroLogger_New(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.NewZeroLogger("parent", ulogger.WithWriter(&buf), ulogger.WithLevel("DEBUG"))
	child := logger.New("child")

	assert.Equal(t, int(gocore.DEBUG), child.LogLevel())

	child.Infof("from the child")
	assert.Contains(t, buf.String(), "from the child")
}

func TestTestLogger(t *testing.T) {
	logger := &ulogger.TestLogger{}

	assert.Same(t, logger, logger.New("x"))
	assert.Same(t, logger, logger.Duplicate())
	assert.Equal(t, 0, logger.LogLevel())

	// nothing to assert, just make sure none of these blow up
	logger.Debugf("a")
	logger.Infof("b")
	logger.Warnf("c")
	logger.Errorf("d")
	logger.Fatalf("e")
}

func TestVerboseTestLogger(t *testing.T) {
	logger := ulogger.NewVerboseTestLogger(t)

	assert.Equal(t, logger, logger.New("x"))
	assert.Equal(t, logger, logger.Duplicate())

	logger.Infof("peer %d connected", 1)
	logger.Warnf("peer %d misbehaving", 1)
}
