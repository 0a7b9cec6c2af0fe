package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Which lines are connected to which, and how far along.
 *
 * Description:	A symmetric 8 x 8 table.  Setting (a,b) always sets
 *		(b,a) too, so there is no way for the two halves to
 *		disagree.  A line talks to one other line at a time in
 *		practice, but the queries allow for more.
 *
 *		This is bookkeeping only.  Driving the crosspoint switch
 *		is done by ConnectionHandler.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

type ConnState uint8

const (
	ConnNone ConnState = iota
	ConnAttempting
	ConnRinging
	ConnEstablished
)

func (s ConnState) String() string {
	switch s {
	case ConnNone:
		return "none"
	case ConnAttempting:
		return "attempting"
	case ConnRinging:
		return "ringing"
	case ConnEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// Symbol is the one character form used in the matrix dump.
func (s ConnState) Symbol() byte {
	switch s {
	case ConnAttempting:
		return '?'
	case ConnRinging:
		return '~'
	case ConnEstablished:
		return '*'
	default:
		return ' '
	}
}

type ConnectionMatrix struct {
	state [MAX_LINES][MAX_LINES]ConnState
	log   *log.Logger
}

func NewConnectionMatrix(cfg *Config) *ConnectionMatrix {
	return &ConnectionMatrix{
		log: component_logger("MATRIX", cfg.Debug.Matrix),
	}
}

func validPair(a, b int) bool {
	return validLine(a) && validLine(b) && a != b
}

// SetConnection records the state of the pair.  False for an invalid pair.
func (m *ConnectionMatrix) SetConnection(a, b int, s ConnState) bool {
	if !validPair(a, b) {
		m.log.Errorf("invalid connection %d <-> %d", a, b)
		return false
	}

	m.state[a][b] = s
	m.state[b][a] = s
	m.log.Debugf("%d <-> %d %s", a, b, s)
	return true
}

func (m *ConnectionMatrix) GetConnectionState(a, b int) ConnState {
	if !validPair(a, b) {
		return ConnNone
	}
	return m.state[a][b]
}

func (m *ConnectionMatrix) AreConnected(a, b int) bool {
	return m.GetConnectionState(a, b) != ConnNone
}

// GetConnectedLine returns the first partner at or above min, NoLine if none.
func (m *ConnectionMatrix) GetConnectedLine(line int, min ConnState) int {
	if !validLine(line) {
		return NoLine
	}
	for other := range MAX_LINES {
		if other != line && m.state[line][other] != ConnNone && m.state[line][other] >= min {
			return other
		}
	}
	return NoLine
}

func (m *ConnectionMatrix) GetAllConnectedLines(line int, min ConnState) []int {
	if !validLine(line) {
		return nil
	}
	var out []int
	for other := range MAX_LINES {
		if other != line && m.state[line][other] != ConnNone && m.state[line][other] >= min {
			out = append(out, other)
		}
	}
	return out
}

func (m *ConnectionMatrix) Disconnect(a, b int) bool {
	return m.SetConnection(a, b, ConnNone)
}

// DisconnectLine clears the whole row and column of a line.
func (m *ConnectionMatrix) DisconnectLine(line int) bool {
	if !validLine(line) {
		m.log.Errorf("invalid line %d", line)
		return false
	}
	for other := range MAX_LINES {
		m.state[line][other] = ConnNone
		m.state[other][line] = ConnNone
	}
	return true
}

func (m *ConnectionMatrix) ClearAll() {
	m.state = [MAX_LINES][MAX_LINES]ConnState{}
}

func (m *ConnectionMatrix) HasAnyConnection(line int) bool {
	return m.GetConnectedLine(line, ConnAttempting) != NoLine
}

// String draws the table, one row per line.
func (m *ConnectionMatrix) String() string {
	var b strings.Builder
	b.WriteString("   ")
	for j := range MAX_LINES {
		fmt.Fprintf(&b, " %d", j)
	}
	b.WriteString("\n")
	for i := range MAX_LINES {
		fmt.Fprintf(&b, "%d |", i)
		for j := range MAX_LINES {
			var c = m.state[i][j].Symbol()
			if i == j {
				c = '-'
			}
			b.WriteByte(' ')
			b.WriteByte(c)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Connections lists each connected pair once.
func (m *ConnectionMatrix) Connections() []string {
	var out []string
	for i := range MAX_LINES {
		for j := i + 1; j < MAX_LINES; j++ {
			if m.state[i][j] != ConnNone {
				out = append(out, fmt.Sprintf("%d <-> %d %s", i, j, m.state[i][j]))
			}
		}
	}
	return out
}
