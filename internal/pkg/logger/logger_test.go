package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newWithOutput(&buf, "production", "notify")
	l.Info("hello", UserID("u1"), Error(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "notify", rec["service"])
	assert.Equal(t, "u1", rec["user_id"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_DevelopmentLogsDebugAsText(t *testing.T) {
	var buf bytes.Buffer
	l := newWithOutput(&buf, "development", "notify")
	l.Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
	assert.Contains(t, buf.String(), "env=development")
}

func TestError_NilIsEmpty(t *testing.T) {
	assert.True(t, Error(nil).Equal(Error(nil)))
	assert.Equal(t, "", Error(nil).Key)
}
