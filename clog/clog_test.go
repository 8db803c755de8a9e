package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(t *testing.T, buf *bytes.Buffer, level string, opts ...Option) Logger {
	t.Helper()
	opts = append(opts, WithWriter(buf))
	l, err := New(&Config{Level: level, Format: "json"}, opts...)
	require.NoError(t, err)
	return l
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestLogger_NamespaceAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(t, &buf, "info", WithNamespace("profile"))

	l.WithNamespace("client").Info("call failed", String("dependency", "payment"), Error(errors.New("refused")))

	m := decode(t, &buf)
	assert.Equal(t, "profile.client", m["namespace"])
	assert.Equal(t, "payment", m["dependency"])
	assert.Equal(t, "refused", m["err_msg"])
	assert.Equal(t, "INFO", m["level"])
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(t, &buf, "debug", WithStandardContext())

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "alice")
	l.DebugContext(ctx, "hello")

	m := decode(t, &buf)
	assert.Equal(t, "req-1", m["request_id"])
	assert.Equal(t, "alice", m["user_id"])
	assert.Equal(t, "req-1", RequestIDFrom(ctx))
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(t, &buf, "warn")

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	require.NoError(t, l.SetLevel(DebugLevel))
	l.Debug("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"WARNING", WarnLevel, true},
		{" error ", ErrorLevel, true},
		{"fatal", FatalLevel, true},
		{"nope", InfoLevel, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, err == nil, tt.in)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard().WithNamespace("x").With(String("a", "b"))
	assert.NotPanics(t, func() { l.Info("noop") })
	assert.NoError(t, l.SetLevel(DebugLevel))
}
