package durable

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorClonesPerOccurrence(t *testing.T) {
	source := fmt.Errorf("connection refused")
	first := NewError(ErrEngineFailure, "engine down", source, map[string]any{"hub": "a"})
	second := NewError(ErrEngineFailure, "", nil, map[string]any{"hub": "b"})

	assert.NotSame(t, ErrEngineFailure, first)
	assert.Equal(t, "engine down", first.Message)
	assert.Equal(t, "engine failure", second.Message, "blank message keeps the sentinel text")
	assert.Equal(t, "a", first.Metadata["hub"])
	assert.Equal(t, "b", second.Metadata["hub"])
	assert.Empty(t, ErrEngineFailure.Metadata, "sentinel metadata is never mutated")
	assert.Equal(t, errors.CategoryExternal, first.Category)

	assert.ErrorIs(t, first, source)
	assert.True(t, HasErrorCode(first, ErrCodeEngineFailure))
	assert.True(t, HasErrorCode(fmt.Errorf("wrapped: %w", first), ErrCodeEngineFailure))
}

func TestNewErrorDefaultsToInvalidRequest(t *testing.T) {
	err := NewError(nil, "bad", nil, nil)
	assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
	assert.Equal(t, errors.CategoryBadInput, err.Category)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "", ErrorCode(fmt.Errorf("plain")))
	assert.False(t, HasErrorCode(fmt.Errorf("plain"), ""))
	assert.False(t, HasErrorCode(ErrProtocolViolation, ""))

	joined := stderrors.Join(fmt.Errorf("plain"), NewError(ErrProtocolViolation, "bad frame", nil, nil))
	assert.True(t, HasErrorCode(joined, ErrCodeProtocolViolation))
}

type fakeBackend struct{}

func TestCapabilityAndVariantErrors(t *testing.T) {
	err := CapabilityNotSupported("instance query", &fakeBackend{})
	assert.True(t, HasErrorCode(err, ErrCodeCapabilityNotSupported))
	assert.Contains(t, err.Message, "*durable.fakeBackend")
	assert.Equal(t, "*durable.fakeBackend", err.Metadata["backend"])

	variant := UnsupportedVariant("history event", EventKindUnknown)
	assert.True(t, HasErrorCode(variant, ErrCodeUnsupportedVariant))
	assert.Equal(t, "history event", variant.Metadata["kind"])
}

func TestAbortAndFailureErrors(t *testing.T) {
	cause := context.Canceled
	abort := &AbortError{Reason: "host shutting down", Cause: cause}
	wrapped := fmt.Errorf("dispatch: %w", abort)

	assert.True(t, IsAbort(wrapped))
	assert.ErrorIs(t, wrapped, context.Canceled)
	assert.Equal(t, "dispatch aborted: host shutting down: context canceled", abort.Error())
	assert.Equal(t, "dispatch aborted: no worker", (&AbortError{Reason: "no worker"}).Error())
	assert.False(t, IsAbort(fmt.Errorf("plain")))

	failure := &FailureError{Details: &FailureDetails{ErrorType: "ArgumentException", ErrorMessage: "bad input"}}
	assert.True(t, IsFailure(fmt.Errorf("turn: %w", failure)))
	assert.Equal(t, "work item failed: ArgumentException: bad input", failure.Error())
	assert.Equal(t, "work item failed", (&FailureError{}).Error())
	assert.False(t, IsFailure(abort))

	assert.Equal(t, "worker crashed", (&InvocationError{Message: "worker crashed"}).Error())
}

func TestFmtLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLoggerFields(NewFmtLogger(&buf), map[string]any{"hub": "billing", "attempt": 2})
	logger.Info("opened %s", "endpoint")

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "opened endpoint")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "attempt=2 hub=billing"), line)
}

func TestDefaultGlogLoggerFormats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLoggerFields(NewDefaultGlogLogger(&buf, "info", true), map[string]any{"hub": "billing"})
		logger.Debug("filtered out")
		logger.Info("hub ready")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "hub ready", entry["msg"])
		assert.Equal(t, "billing", entry["hub"])
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLoggerFields(NewDefaultGlogLogger(&buf, "debug", false), map[string]any{"hub": "billing"})
		logger.Debug("hub ready")

		out := strings.TrimSpace(buf.String())
		assert.False(t, strings.HasPrefix(out, "{"), "console output is not JSON: %s", out)
		assert.Contains(t, out, `msg="hub ready"`)
		assert.Contains(t, out, "hub=billing")
	})
}
