package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesCategoryAndCaller(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	l.Info("booking", "booking b1 committed")
	l.LogBooking("BOOKED", "e1", "u1", "ok")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "[BOOKING")
	assert.Contains(t, lines[0], "logger_test.go")
	assert.Contains(t, lines[1], "[BOOKED] event=e1 user=u1 - ok")
}

func TestLoggerMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)
	l.minLevel = WARN

	l.Info("TEST", "hidden")
	l.LogCounter("RESERVE", "e1", "hidden too")
	l.Warn("TEST", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestFileSinkWritesJSON(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerWithOptions(Options{Dir: dir, FilePrefix: "test", MinLevel: INFO})
	l.out = &bytes.Buffer{}
	l.Error("KAFKA", "publish failed")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "test-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category":"KAFKA"`)
	assert.Contains(t, string(data), `"message":"publish failed"`)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(NewLoggerWithWriter(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/events/e1/book", nil))

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "POST /api/events/e1/book - 418")
}
