package framework

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLoggerKeepsMessagesInOrder(t *testing.T) {
	var l CapturingLogger
	l.Printf("first %d", 1)
	l.Printf("second %s", "two")

	out := l.Output()
	require.Len(t, out, 2)
	assert.Equal(t, "first 1", out[0].Message)
	assert.Equal(t, "second two", out[1].Message)
}

func TestCapturedOutputDump(t *testing.T) {
	var l CapturingLogger
	l.Printf("hello")
	var buf bytes.Buffer
	l.Output().Dump(&buf, "  DEBUG ")
	assert.Regexp(t, `^  DEBUG \[\d{4}-\d\d-\d\d \d\d:\d\d:\d\d\.\d{3}\] hello\n$`, buf.String())
}

func TestLoggerWithPrefix(t *testing.T) {
	var l CapturingLogger
	LoggerWithPrefix(&l, "[sink] ").Printf("got %d", 3)
	assert.Equal(t, "[sink] got 3", l.Output()[0].Message)

	LoggerWithPrefix(nil, "x").Printf("nowhere") // must not panic
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{"log-sink", "hidden-store"}
	assert.True(t, c.Has("log-sink"))
	assert.False(t, c.Has("fault-injection"))
	assert.True(t, c.HasAll("log-sink", "hidden-store"))
	assert.False(t, c.HasAll("log-sink", "fault-injection"))
	assert.Equal(t, "log-sink, hidden-store", c.String())
}
