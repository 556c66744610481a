//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithJobKey(WithUserID(WithTraceID(context.Background(), "t-1"), "u-1"), "key-1")
	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "t-1", line["trace_id"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, "key-1", line["job_key"])
}

func TestWithWithoutFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	With(context.Background(), &base).Info().Msg("plain")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "trace_id")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "abcdefghij", Redact("abcdefghij", true))
	assert.Equal(t, "***", Redact("short", false))
	assert.Equal(t, "abcd...ij", Redact("abcdefghij", false))
}
