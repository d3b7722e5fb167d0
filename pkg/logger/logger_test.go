package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewForEnv(InfoLevel, &buf, "production").WithFields(map[string]interface{}{"component": "ledger"})

	log.Warn("reimbursement skipped", map[string]interface{}{
		"store_id": 5,
		"error":    errors.New("boom"),
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "reimbursement skipped", entry["message"])
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 5, entry["store_id"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewForEnv(ErrorLevel, &buf, "production")

	log.Info("dropped", nil)
	assert.Zero(t, buf.Len())

	log.Error("kept", nil)
	assert.NotZero(t, buf.Len())
}
