package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMapFieldsReachZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Info("user provisioned", map[string]any{
		"username": "bob1",
		"attempts": 2,
	})
	Error("lookup failed", map[string]any{
		"error": errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "user provisioned", entries[0].Message)
	assert.Equal(t, map[string]any{"username": "bob1", "attempts": int64(2)}, entries[0].ContextMap())

	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNilFieldsAreAllowed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Warn("shutdown signal received", nil)
	Debug("dropped below level", nil)

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}
