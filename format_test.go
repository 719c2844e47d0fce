package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{1500 * time.Microsecond, "2ms"},
		{2340 * time.Millisecond, "2.3s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(time.Time{}))

	old := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)
	assert.Equal(t, "Dec 25  2020", formatTime(old))

	now := time.Now()
	recent := time.Date(now.Year(), time.March, 5, 10, 30, 15, 0, time.Local)
	assert.Equal(t, "Mar  5 10:30:15", formatTime(recent))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "abc", formatCell("abc"))
	assert.Equal(t, "12.5", formatCell(json.Number("12.5")))
	assert.Equal(t, "true", formatCell(true))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, [][]string{{"0", "Design_ID"}, {"1", "Score"}})

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Design_ID")
	assert.Contains(t, out, "Score")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"rows": 2}))
	assert.JSONEq(t, `{"rows":2}`, buf.String())
}

func TestStatusf_Quiet(t *testing.T) {
	var buf bytes.Buffer

	statusf(&buf, true, "hidden %d", 1)
	assert.Empty(t, buf.String())

	statusf(&buf, false, "shown %d", 2)
	assert.Equal(t, "shown 2", buf.String())
}
