package gohost

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

func TestSlogHandler_ReportsWarnAndError(t *testing.T) {
	rt, _, p := newTestRuntime(t)
	var buf bytes.Buffer
	logger := slog.New(rt.SlogHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Warn("disk almost full", "free", "3%")
	logger.Error("payment declined")

	events := p.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, "disk almost full", events[0].Exception.Message)
	assert.Equal(t, "payment declined", events[1].Exception.Message)
	require.NotNil(t, events[0].Exception.Stacktrace[0].File)
	assert.True(t, strings.HasSuffix(*events[0].Exception.Stacktrace[0].File, "slog_test.go"))

	assert.Contains(t, buf.String(), "disk almost full")
	assert.Contains(t, buf.String(), "payment declined")

	last := rt.LastError()
	require.NotNil(t, last)
	assert.Equal(t, devpulse.SeverityError, last.Severity)
}

func TestSlogHandler_LowerLevelsPassThrough(t *testing.T) {
	rt, _, p := newTestRuntime(t)
	var buf bytes.Buffer
	logger := slog.New(rt.SlogHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Info("started")
	logger.Debug("hidden")

	assert.Empty(t, p.events(t))
	assert.Contains(t, buf.String(), "started")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestSlogHandler_InnerAboveWarn(t *testing.T) {
	rt, _, p := newTestRuntime(t)
	var buf bytes.Buffer
	logger := slog.New(rt.SlogHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})))

	logger.Warn("reported but not printed")

	assert.Len(t, p.events(t), 1)
	assert.Empty(t, buf.String())
}

func TestSlogHandler_WithAttrsAndGroup(t *testing.T) {
	rt, _, p := newTestRuntime(t)
	var buf bytes.Buffer
	logger := slog.New(rt.SlogHandler(slog.NewTextHandler(&buf, nil))).
		With("service", "billing").
		WithGroup("req")

	logger.Error("charge failed", "id", 7)

	assert.Len(t, p.events(t), 1)
	assert.Contains(t, buf.String(), "service=billing")
	assert.Contains(t, buf.String(), "req.id=7")
}
