package vaxel

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualClock only moves when told to.
type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// AssertLogContains runs command with all loggers writing to a buffer.
func AssertLogContains(t *testing.T, command func(), expectedOutputContains string) {
	t.Helper()

	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)

	command()

	assert.Contains(t, buf.String(), expectedOutputContains)
}

// statusRecorder collects status callback invocations.
type statusRecorder struct {
	calls []statusCall
}

type statusCall struct {
	Line   int
	Status LineStatus
}

func (r *statusRecorder) record(line int, st LineStatus) {
	r.calls = append(r.calls, statusCall{Line: line, Status: st})
}
