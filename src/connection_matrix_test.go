package vaxel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestConnectionMatrixBasics(t *testing.T) {
	var m = NewConnectionMatrix(DefaultConfig())

	assert.False(t, m.SetConnection(2, 2, ConnEstablished), "a line cannot connect to itself")
	assert.False(t, m.SetConnection(-1, 2, ConnEstablished))
	assert.False(t, m.SetConnection(1, MAX_LINES, ConnEstablished))

	require.True(t, m.SetConnection(1, 4, ConnRinging))
	assert.Equal(t, ConnRinging, m.GetConnectionState(4, 1))
	assert.True(t, m.AreConnected(4, 1))
	assert.True(t, m.HasAnyConnection(1))
	assert.False(t, m.HasAnyConnection(2))

	assert.Equal(t, 4, m.GetConnectedLine(1, ConnAttempting))
	assert.Equal(t, NoLine, m.GetConnectedLine(1, ConnEstablished))

	m.SetConnection(1, 6, ConnAttempting)
	assert.Equal(t, []int{4, 6}, m.GetAllConnectedLines(1, ConnAttempting))
	assert.Equal(t, []int{4}, m.GetAllConnectedLines(1, ConnRinging))

	assert.True(t, m.DisconnectLine(1))
	assert.False(t, m.HasAnyConnection(1))
	assert.False(t, m.HasAnyConnection(4))
	assert.False(t, m.HasAnyConnection(6))
}

func TestConnectionMatrixDump(t *testing.T) {
	var m = NewConnectionMatrix(DefaultConfig())
	m.SetConnection(0, 1, ConnEstablished)
	m.SetConnection(2, 3, ConnRinging)

	var dump = m.String()
	assert.Contains(t, dump, "0 | - *")
	assert.Contains(t, dump, "2 |     - ~")
	assert.Equal(t, []string{"0 <-> 1 established", "2 <-> 3 ringing"}, m.Connections())

	m.ClearAll()
	assert.Empty(t, m.Connections())
}

func TestConnStateSymbols(t *testing.T) {
	assert.Equal(t, byte(' '), ConnNone.Symbol())
	assert.Equal(t, byte('?'), ConnAttempting.Symbol())
	assert.Equal(t, byte('~'), ConnRinging.Symbol())
	assert.Equal(t, byte('*'), ConnEstablished.Symbol())
}

// Whatever sequence of operations, (a,b) and (b,a) agree and the diagonal stays empty.
func TestConnectionMatrixSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var m = NewConnectionMatrix(DefaultConfig())

		var steps = rapid.IntRange(1, 60).Draw(t, "steps")
		for range steps {
			var a = rapid.IntRange(-1, MAX_LINES).Draw(t, "a")
			var b = rapid.IntRange(-1, MAX_LINES).Draw(t, "b")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				m.SetConnection(a, b, ConnState(rapid.IntRange(0, 3).Draw(t, "state")))
			case 1:
				m.Disconnect(a, b)
			case 2:
				m.DisconnectLine(a)
			case 3:
				m.ClearAll()
			}

			for i := range MAX_LINES {
				if m.state[i][i] != ConnNone {
					t.Fatalf("line %d connected to itself", i)
				}
				for j := range MAX_LINES {
					if m.GetConnectionState(i, j) != m.GetConnectionState(j, i) {
						t.Fatalf("(%d,%d)=%s but (%d,%d)=%s", i, j, m.GetConnectionState(i, j), j, i, m.GetConnectionState(j, i))
					}
				}
			}
		}
	})
}
