package vaxel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCallLog(t *testing.T, path string) [][]string {
	t.Helper()

	var f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var rows, csvErr = csv.NewReader(f).ReadAll()
	require.NoError(t, csvErr)
	return rows
}

func TestCallLogDisabled(t *testing.T) {
	var cl, err = NewCallLog(DefaultConfig(), newManualClock())
	require.NoError(t, err)
	assert.Nil(t, cl)

	// Fine on nil.
	cl.Record(CallDial, 0, 1, "101", LineRinging)
	assert.Empty(t, cl.CallID(0))
	assert.NoError(t, cl.Close())
}

func TestCallLogOneCall(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.CallLog.Dir = t.TempDir()
	var clock = newManualClock()

	var cl, err = NewCallLog(cfg, clock)
	require.NoError(t, err)
	defer cl.Close()

	cl.Record(CallDial, 0, 1, "101", LineRinging)
	var id = cl.CallID(0)
	require.NotEmpty(t, id)
	assert.Equal(t, id, cl.CallID(1), "both ends share the call")

	clock.Advance(3 * time.Second)
	cl.Record(CallAnswer, 1, 0, "", LineConnected)
	clock.Advance(time.Minute)
	cl.Record(CallHangup, 0, 1, "", LineIdle)
	assert.Empty(t, cl.CallID(0))
	assert.Empty(t, cl.CallID(1))

	var rows = readCallLog(t, filepath.Join(cfg.CallLog.Dir, "calls-2024-03-01.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, call_log_header, rows[0])
	assert.Equal(t, []string{id, "1709294400", "2024-03-01T12:00:00Z", "dial", "0", "1", "101", "line_ringing"}, rows[1])
	assert.Equal(t, id, rows[2][0])
	assert.Equal(t, "answer", rows[2][3])
	assert.Equal(t, "hangup", rows[3][3])
	assert.Equal(t, "line_idle", rows[3][7])

	// A new call gets a new id.
	cl.Record(CallFail, 2, NoLine, "999", LineFail)
	rows = readCallLog(t, filepath.Join(cfg.CallLog.Dir, "calls-2024-03-01.csv"))
	require.Len(t, rows, 5)
	assert.NotEqual(t, id, rows[4][0])
	assert.Empty(t, rows[4][5])
}

func TestCallLogNewFileEachDay(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.CallLog.Dir = t.TempDir()
	var clock = newManualClock()

	var cl, err = NewCallLog(cfg, clock)
	require.NoError(t, err)
	defer cl.Close()

	cl.Record(CallBusy, 3, 4, "104", LineBusy)
	clock.Advance(24 * time.Hour)
	cl.Record(CallBusy, 3, 4, "104", LineBusy)

	for _, name := range []string{"calls-2024-03-01.csv", "calls-2024-03-02.csv"} {
		var rows = readCallLog(t, filepath.Join(cfg.CallLog.Dir, name))
		require.Len(t, rows, 2, name)
		assert.Equal(t, call_log_header, rows[0])
	}
}

func TestCallLogAppendsWithoutSecondHeader(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.CallLog.Dir = t.TempDir()
	var clock = newManualClock()

	for range 2 {
		var cl, err = NewCallLog(cfg, clock)
		require.NoError(t, err)
		cl.Record(CallNoAnswer, 5, 6, "", LineTimeout)
		require.NoError(t, cl.Close())
	}

	var rows = readCallLog(t, filepath.Join(cfg.CallLog.Dir, "calls-2024-03-01.csv"))
	assert.Len(t, rows, 3)
}
