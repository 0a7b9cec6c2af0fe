package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Keep the connection matrix and the crosspoint switch
 *		in step.
 *
 * Description:	Only Established pairs have their crosspoints closed,
 *		in both directions.  Attempting and Ringing pairs are
 *		tracked in the matrix but carry no audio.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

type ConnectionHandler struct {
	matrix *ConnectionMatrix
	mt     *MT8816Driver

	// Line currently patched to the DTMF decoder input, NoLine if none.
	dtmfLine int

	log *log.Logger
}

func NewConnectionHandler(matrix *ConnectionMatrix, mt *MT8816Driver, cfg *Config) *ConnectionHandler {
	return &ConnectionHandler{
		matrix:   matrix,
		mt:       mt,
		dtmfLine: NoLine,
		log:      component_logger("MATRIX", cfg.Debug.Matrix),
	}
}

func (h *ConnectionHandler) Matrix() *ConnectionMatrix { return h.matrix }

// SetState records a pair without audio, e.g. while the target rings.
func (h *ConnectionHandler) SetState(a, b int, s ConnState) bool {
	if s == ConnEstablished {
		return h.ConnectLines(a, b)
	}
	if h.matrix.GetConnectionState(a, b) == ConnEstablished {
		h.mt.SetLineConnection(a, b, false)
	}
	return h.matrix.SetConnection(a, b, s)
}

// ConnectLines marks the pair Established and closes both crosspoints.
func (h *ConnectionHandler) ConnectLines(a, b int) bool {
	if !h.matrix.SetConnection(a, b, ConnEstablished) {
		return false
	}
	if !h.mt.SetLineConnection(a, b, true) {
		h.log.Warnf("%d <-> %d established without audio path", a, b)
	}
	h.log.Infof("connected %d <-> %d", a, b)
	return true
}

func (h *ConnectionHandler) Disconnect(a, b int) bool {
	if h.matrix.GetConnectionState(a, b) == ConnEstablished {
		h.mt.SetLineConnection(a, b, false)
	}
	return h.matrix.Disconnect(a, b)
}

/*-------------------------------------------------------------------
 *
 * Name:        DisconnectLine
 *
 * Purpose:     Tear down everything a line takes part in.
 *
 * Returns:	The former partners with the state each pair had,
 *		so the caller can tell an answered call from one
 *		that was still ringing.
 *
 *--------------------------------------------------------------------*/

func (h *ConnectionHandler) DisconnectLine(line int) map[int]ConnState {
	var partners = map[int]ConnState{}
	for _, p := range h.matrix.GetAllConnectedLines(line, ConnAttempting) {
		var s = h.matrix.GetConnectionState(line, p)
		partners[p] = s
		if s == ConnEstablished {
			h.mt.SetLineConnection(line, p, false)
		}
	}
	h.matrix.DisconnectLine(line)
	if len(partners) > 0 {
		h.log.Infof("line %d disconnected from %d line(s)", line, len(partners))
	}
	return partners
}

// ConnectDTMF patches a line to the DTMF decoder, replacing any earlier line.
func (h *ConnectionHandler) ConnectDTMF(line int) bool {
	if h.dtmfLine == line {
		return true
	}
	h.DisconnectDTMF()
	if !h.mt.SetAudioConnection(line, AUDIO_DTMF_IN, true) {
		return false
	}
	h.dtmfLine = line
	return true
}

func (h *ConnectionHandler) DisconnectDTMF() {
	if h.dtmfLine == NoLine {
		return
	}
	h.mt.SetAudioConnection(h.dtmfLine, AUDIO_DTMF_IN, false)
	h.dtmfLine = NoLine
}

func (h *ConnectionHandler) DTMFLine() int {
	return h.dtmfLine
}

func (h *ConnectionHandler) ClearAll() {
	h.matrix.ClearAll()
	h.mt.Reset()
	h.dtmfLine = NoLine
}
