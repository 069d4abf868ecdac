// Package ioendpoint provides the four built-in processor variants a host
// uses to wire its own audio/MIDI buffers into a graph (spec.md §6, "I/O
// endpoint nodes (provided)"): audio_in, audio_out, midi_in, midi_out.
package ioendpoint

import (
	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/processor"
)

// Role identifies which of the four endpoint variants a node is.
type Role int

const (
	AudioIn Role = iota
	AudioOut
	MIDIIn
	MIDIOut
)

func (r Role) String() string {
	switch r {
	case AudioIn:
		return "audio_in"
	case AudioOut:
		return "audio_out"
	case MIDIIn:
		return "midi_in"
	case MIDIOut:
		return "midi_out"
	default:
		return "unknown"
	}
}

// RoleProcessor is implemented by Endpoint so graph/compile can recognize
// an I/O endpoint node without importing this package's concrete type
// into its legality rules.
type RoleProcessor interface {
	IOGraphRole() Role
}

// Endpoint is a zero-latency passthrough node: its own ProcessBlock calls
// are no-ops, because render.Sequence.Run/Perform splice the caller's
// buffers directly into the pool slots this node's channels are assigned
// to, both before running the compiled ops (audio_in/midi_in) and after
// (audio_out/midi_out) — see graph/render's IOBuffers. The node still
// participates in ordering and buffer assignment like any other processor,
// it simply never mutates what it's handed.
type Endpoint struct {
	role        Role
	numChannels int
	nonRealtime bool
	precision   bool
}

// NewAudioIn returns a 0-in/numChannels-out endpoint that presents the
// host's input buffer to the rest of the graph.
func NewAudioIn(numChannels int) *Endpoint { return &Endpoint{role: AudioIn, numChannels: numChannels} }

// NewAudioOut returns a numChannels-in/0-out endpoint whose input channels
// render.Sequence.Run copies into the host's output buffer after the
// compiled ops. Run overwrites the host's channels rather than summing into
// them: with more than one audio_out node, only the channels that fit the
// host buffer are written, taken in node order.
func NewAudioOut(numChannels int) *Endpoint {
	return &Endpoint{role: AudioOut, numChannels: numChannels}
}

// NewMIDIIn returns a MIDI-only input endpoint.
func NewMIDIIn() *Endpoint { return &Endpoint{role: MIDIIn} }

// NewMIDIOut returns a MIDI-only output endpoint.
func NewMIDIOut() *Endpoint { return &Endpoint{role: MIDIOut} }

func (e *Endpoint) IOGraphRole() Role { return e.role }

func (e *Endpoint) NumInputChannels() int {
	if e.role == AudioOut {
		return e.numChannels
	}
	return 0
}

func (e *Endpoint) NumOutputChannels() int {
	if e.role == AudioIn {
		return e.numChannels
	}
	return 0
}

func (e *Endpoint) AcceptsMIDI() bool  { return e.role == MIDIOut }
func (e *Endpoint) ProducesMIDI() bool { return e.role == MIDIIn }

func (e *Endpoint) SupportsDoublePrecision() bool      { return true }
func (e *Endpoint) IsUsingDoublePrecision() bool        { return e.precision }
func (e *Endpoint) SetProcessingPrecision(double bool)  { e.precision = double }

func (e *Endpoint) LatencySamples() int { return 0 }

func (e *Endpoint) SetRateAndBlockSize(float64, int) {}
func (e *Endpoint) PrepareToPlay(float64, int) error  { return nil }
func (e *Endpoint) ReleaseResources()                 {}
func (e *Endpoint) Reset()                            {}

func (e *Endpoint) SetPlayHead(processor.PlayHead) {}
func (e *Endpoint) SetNonRealtime(nonRealtime bool) { e.nonRealtime = nonRealtime }

func (e *Endpoint) CallbackLock() processor.Locker { return nil }
func (e *Endpoint) IsSuspended() bool              { return false }

func (e *Endpoint) BypassParameter() processor.BypassParameter { return nil }

func (e *Endpoint) ProcessBlockF(audio [][]float32, m *midi.Buffer)         {}
func (e *Endpoint) ProcessBlockD(audio [][]float64, m *midi.Buffer)         {}
func (e *Endpoint) ProcessBlockBypassedF(audio [][]float32, m *midi.Buffer) {}
func (e *Endpoint) ProcessBlockBypassedD(audio [][]float64, m *midi.Buffer) {}

var _ processor.Processor = (*Endpoint)(nil)
