package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactMasksCredentialKeys(t *testing.T) {
	in := []interface{}{"source", "idr", "api_key", "sk-123", "auth_token", "abc"}
	out := redact(in)

	assert.Equal(t, "idr", out[1])
	assert.Equal(t, "[REDACTED]", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	assert.Equal(t, "sk-123", in[3], "input slice must not be mutated")
}

func TestRedactOddLength(t *testing.T) {
	out := redact([]interface{}{"token"})
	assert.Equal(t, []interface{}{"token"}, out)
}

func TestNewConsoleAndProd(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(Options{Mode: mode})
		assert.NoError(t, err)
		l.With("component", "test").Info("hello", "n", 1)
	}
}
