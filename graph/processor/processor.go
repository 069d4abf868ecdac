// Package processor defines the contract a host-supplied audio/MIDI
// processor must satisfy to be wrapped by a graph.Node. Concrete
// processors (effects, synths, the I/O endpoints in graph/ioendpoint) are
// opaque to the graph — it only ever calls through this interface.
package processor

import "github.com/riftaudio/graphengine/graph/midi"

// PlayHead is whatever transport/position object the host supplies; the
// graph forwards it unexamined via SetPlayHead before each process call.
type PlayHead any

// BypassParameter is the optional host-exposed control a processor may
// expose so that "bypassed" becomes a normal automatable parameter instead
// of the graph silently swapping in ProcessBlockBypassed.
type BypassParameter interface {
	Value() float64
}

// Locker is the per-processor callback lock every process call must hold.
// It is the *only* lock the audio thread may block on (see §5 of the
// design notes); prepare/release must never be called while it is held.
type Locker interface {
	Lock()
	Unlock()
}

// Processor is the external black-box signal unit a graph.Node owns. All
// methods except the ProcessBlock* family may be called from the topology
// thread; ProcessBlock*/CallbackLock/IsSuspended are called from the
// audio thread while the render sequence executes.
type Processor interface {
	// NumInputChannels and NumOutputChannels report the processor's total
	// audio port counts (not including the MIDI port).
	NumInputChannels() int
	NumOutputChannels() int

	AcceptsMIDI() bool
	ProducesMIDI() bool

	SupportsDoublePrecision() bool
	IsUsingDoublePrecision() bool
	SetProcessingPrecision(useDouble bool)

	// LatencySamples is the processor's self-reported output delay, folded
	// into the compiler's cumulative per-node delay.
	LatencySamples() int

	SetRateAndBlockSize(sampleRate float64, blockSize int)
	PrepareToPlay(sampleRate float64, blockSize int) error
	ReleaseResources()
	Reset()

	SetPlayHead(ph PlayHead)
	SetNonRealtime(nonRealtime bool)

	CallbackLock() Locker
	IsSuspended() bool

	// BypassParameter returns the processor's own bypass control, or nil if
	// it has none (in which case node-level bypass falls back to calling
	// ProcessBlockBypassed instead of ProcessBlock).
	BypassParameter() BypassParameter

	ProcessBlockF(audio [][]float32, midi *midi.Buffer)
	ProcessBlockD(audio [][]float64, midi *midi.Buffer)
	ProcessBlockBypassedF(audio [][]float32, midi *midi.Buffer)
	ProcessBlockBypassedD(audio [][]float64, midi *midi.Buffer)
}
