// Package render holds the executable, compiled program a graph evaluates
// once per audio block (C4): an ordered list of buffer ops over a pool of
// reusable audio and MIDI buffers, generic over sample precision.
package render

import (
	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/prepare"
	"github.com/riftaudio/graphengine/graph/processor"
)

// Sample is the constraint satisfied by the two precisions a Sequence can be
// built over.
type Sample interface {
	~float32 | ~float64
}

// ChannelMap tells a process op which pool buffer backs each of a
// processor's audio ports.
type ChannelMap struct {
	// Buffers holds one pool index per port, inputs followed by outputs
	// (first NumIn entries are inputs, the rest outputs).
	Buffers []int
	NumIn   int
	NumOut  int
}

// Op is one instruction in a compiled Sequence. Ops close over whatever
// state they need (a delay op owns its ring buffer); Sequence.Run invokes
// them in compiled order.
type Op[S Sample] interface {
	Run(ctx *Context[S])
}

// Context is the mutable state a sequence's ops read and write while
// executing one block. It is owned entirely by the audio thread during
// Run — nothing here is touched by the topology thread.
type Context[S Sample] struct {
	AudioBuffers [][]S
	MIDIBuffers  []midi.Buffer
	PlayHead     processor.PlayHead
	NumSamples   int
}

// clearOp zeros one audio buffer.
type clearOp[S Sample] struct{ ch int }

func (o clearOp[S]) Run(ctx *Context[S]) {
	buf := ctx.AudioBuffers[o.ch]
	for i := range buf {
		buf[i] = 0
	}
}

// copyOp copies src into dst.
type copyOp[S Sample] struct{ src, dst int }

func (o copyOp[S]) Run(ctx *Context[S]) {
	copy(ctx.AudioBuffers[o.dst], ctx.AudioBuffers[o.src])
}

// addOp accumulates src into dst.
type addOp[S Sample] struct{ src, dst int }

func (o addOp[S]) Run(ctx *Context[S]) {
	src, dst := ctx.AudioBuffers[o.src], ctx.AudioBuffers[o.dst]
	for i := range dst {
		dst[i] += src[i]
	}
}

// clearMIDIOp empties one MIDI buffer.
type clearMIDIOp[S Sample] struct{ idx int }

func (o clearMIDIOp[S]) Run(ctx *Context[S]) { ctx.MIDIBuffers[o.idx].Clear() }

// copyMIDIOp overwrites dst with src's events.
type copyMIDIOp[S Sample] struct{ src, dst int }

func (o copyMIDIOp[S]) Run(ctx *Context[S]) {
	ctx.MIDIBuffers[o.dst].CopyFrom(&ctx.MIDIBuffers[o.src])
}

// addMIDIOp merges src's events into dst.
type addMIDIOp[S Sample] struct{ src, dst int }

func (o addMIDIOp[S]) Run(ctx *Context[S]) {
	ctx.MIDIBuffers[o.dst].AddFrom(&ctx.MIDIBuffers[o.src])
}

// delayOp is an N-sample ring-buffer delay line on one audio buffer,
// mutated in place across invocations — the compiler emits exactly one
// instance per delayed edge and that instance owns its ring state for the
// life of the sequence.
type delayOp[S Sample] struct {
	ch   int
	ring []S
	pos  int
}

func newDelayOp[S Sample](ch, samples int) *delayOp[S] {
	if samples <= 0 {
		samples = 1
	}
	return &delayOp[S]{ch: ch, ring: make([]S, samples)}
}

func (o *delayOp[S]) Run(ctx *Context[S]) {
	buf := ctx.AudioBuffers[o.ch]
	for i := range buf {
		out := o.ring[o.pos]
		o.ring[o.pos] = buf[i]
		buf[i] = out
		o.pos++
		if o.pos == len(o.ring) {
			o.pos = 0
		}
	}
}

// processOp invokes one node's processor.
type processOp[S Sample] struct {
	node     processor.Processor
	bypassed func() bool
	chanMap  ChannelMap
	midiIdx  int
}

func (o processOp[S]) Run(ctx *Context[S]) {
	if o.node.IsSuspended() {
		for _, b := range o.chanMap.Buffers[o.chanMap.NumIn:] {
			buf := ctx.AudioBuffers[b]
			for i := range buf {
				buf[i] = 0
			}
		}
		return
	}

	views := make([][]S, len(o.chanMap.Buffers))
	for i, b := range o.chanMap.Buffers {
		views[i] = ctx.AudioBuffers[b]
	}
	mbuf := &ctx.MIDIBuffers[o.midiIdx]

	bypassed := o.bypassed != nil && o.bypassed()
	useBypassBlock := bypassed && o.node.BypassParameter() == nil

	lock := o.node.CallbackLock()
	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}
	o.node.SetPlayHead(ctx.PlayHead)

	runProcessor(o.node, views, mbuf, useBypassBlock)
}

// runProcessor dispatches to the node's float/double process method based
// on the node's own active precision (set during prepare, §4.3), converting
// buffer views through a temporary when the sequence's own sample type
// differs — the mismatch branch §4.4 says should rarely be taken because
// preparation already assigns each processor the highest precision it
// supports at or below the requested one.
func runProcessor[S Sample](p processor.Processor, views [][]S, mbuf *midi.Buffer, bypassed bool) {
	wantDouble := p.IsUsingDoublePrecision()

	var zero S
	isDouble := any(zero) == any(float64(0))

	if wantDouble == isDouble {
		dispatch(p, views, mbuf, bypassed)
		return
	}

	// Precision mismatch: materialize a temp buffer of the processor's
	// own type, copy in, run, copy back out.
	if wantDouble {
		tmp := make([][]float64, len(views))
		for i, v := range views {
			tmp[i] = make([]float64, len(v))
			for j, s := range v {
				tmp[i][j] = float64(s)
			}
		}
		if bypassed {
			p.ProcessBlockBypassedD(tmp, mbuf)
		} else {
			p.ProcessBlockD(tmp, mbuf)
		}
		for i, v := range views {
			for j := range v {
				v[j] = S(tmp[i][j])
			}
		}
	} else {
		tmp := make([][]float32, len(views))
		for i, v := range views {
			tmp[i] = make([]float32, len(v))
			for j, s := range v {
				tmp[i][j] = float32(s)
			}
		}
		if bypassed {
			p.ProcessBlockBypassedF(tmp, mbuf)
		} else {
			p.ProcessBlockF(tmp, mbuf)
		}
		for i, v := range views {
			for j := range v {
				v[j] = S(tmp[i][j])
			}
		}
	}
}

// dispatch recovers the concrete instantiation (S is always float32 or
// float64 at any call site) and invokes the matching ProcessBlock method.
func dispatch[S Sample](p processor.Processor, views [][]S, mbuf *midi.Buffer, bypassed bool) {
	switch v := any(views).(type) {
	case [][]float32:
		if bypassed {
			p.ProcessBlockBypassedF(v, mbuf)
		} else {
			p.ProcessBlockF(v, mbuf)
		}
	case [][]float64:
		if bypassed {
			p.ProcessBlockBypassedD(v, mbuf)
		} else {
			p.ProcessBlockD(v, mbuf)
		}
	}
}

// The constructors below are the only way graph/compile builds ops: the
// concrete op types stay unexported so Sequence.Run is the sole executor,
// but the compiler needs to construct them while assembling a program.

func NewClearOp[S Sample](ch int) Op[S]       { return clearOp[S]{ch: ch} }
func NewCopyOp[S Sample](src, dst int) Op[S]  { return copyOp[S]{src: src, dst: dst} }
func NewAddOp[S Sample](src, dst int) Op[S]   { return addOp[S]{src: src, dst: dst} }
func NewClearMIDIOp[S Sample](idx int) Op[S]  { return clearMIDIOp[S]{idx: idx} }
func NewCopyMIDIOp[S Sample](src, dst int) Op[S] { return copyMIDIOp[S]{src: src, dst: dst} }
func NewAddMIDIOp[S Sample](src, dst int) Op[S]  { return addMIDIOp[S]{src: src, dst: dst} }

// NewDelayOp returns a ring-buffer delay op of the given length in
// samples (minimum 1 — a zero-length delay line is meaningless).
func NewDelayOp[S Sample](ch, samples int) Op[S] { return newDelayOp[S](ch, samples) }

// NewProcessOp returns the op that invokes node's process callback.
// bypassed is polled once per invocation (typically *graph.Node.Bypassed);
// pass nil if the node can never be bypassed.
func NewProcessOp[S Sample](node processor.Processor, bypassed func() bool, chanMap ChannelMap, midiIdx int) Op[S] {
	return processOp[S]{node: node, bypassed: bypassed, chanMap: chanMap, midiIdx: midiIdx}
}

// Sequence is a compiled, linearly-executable program for one precision
// (S = float32 or float64): num_audio_buffers/num_midi_buffers worth of
// pooled buffers, plus the ops the compiler emitted against them.
type Sequence[S Sample] struct {
	Ops            []Op[S]
	NumAudioBuffers int
	NumMIDIBuffers  int
	LatencySamples  int
	Settings        *prepare.Settings
	GenerationID    string

	workspace [][]S
	midiPool  []midi.Buffer

	// chunk* are Perform's scratch state for the over-MaxBlockSize path,
	// reused across chunks the way delayOp reuses its own ring: the channel
	// slices are reassigned in place each iteration, and the MIDI buffers
	// are cleared and refilled rather than replaced.
	chunkAudioIn  [][]S
	chunkAudioOut [][]S
	chunkMIDIIn   midi.Buffer
	chunkMIDIOut  midi.Buffer
}

// NewSequence allocates a sequence's backing pools. Ops are appended by the
// compiler after construction.
func NewSequence[S Sample](numAudio, numMIDI int, settings *prepare.Settings) *Sequence[S] {
	s := &Sequence[S]{
		NumAudioBuffers: numAudio,
		NumMIDIBuffers:  numMIDI,
		Settings:        settings,
		midiPool:        make([]midi.Buffer, numMIDI),
		chunkMIDIIn:     *midi.NewBuffer(),
		chunkMIDIOut:    *midi.NewBuffer(),
	}
	for i := range s.midiPool {
		s.midiPool[i] = *midi.NewBuffer()
	}
	return s
}

// prepareWorkspace (re)allocates the per-block sample storage for
// numSamples frames, sized once per block-size change rather than per
// block.
func (s *Sequence[S]) prepareWorkspace(numSamples int) {
	if len(s.workspace) == s.NumAudioBuffers && len(s.workspace) > 0 && len(s.workspace[0]) == numSamples {
		return
	}
	s.workspace = make([][]S, s.NumAudioBuffers)
	for i := range s.workspace {
		s.workspace[i] = make([]S, numSamples)
	}
}

// MaxBlockSize is the block size the sequence was compiled for; callers
// whose block exceeds it must split into chunks of this size (§4.4).
func (s *Sequence[S]) MaxBlockSize() int {
	if s.Settings == nil {
		return 0
	}
	return s.Settings.BlockSize
}

// IOBuffers names the pool buffer indices the compiler assigned to the
// graph's I/O endpoint nodes — the audio_in node's output channels, the
// audio_out node's input channels, and the corresponding MIDI buffer
// indices (-1 if the graph has no midi_in/midi_out node). Run uses these
// to splice the caller's buffers in and out of the pool around the
// compiled ops.
type IOBuffers struct {
	AudioIn  []int
	AudioOut []int
	MIDIIn   int
	MIDIOut  int
}

// Run executes one block: copies the caller's input audio/MIDI into the
// buffers feeding the graph's I/O endpoint nodes, runs every op in
// compiled order, then copies the buffers written by the audio_out/
// midi_out endpoints back into the caller's output. audioIn/audioOut hold
// one slice per caller channel; midiIn/midiOut may be nil if the graph
// declares no MIDI ports.
func (s *Sequence[S]) Run(audioIn, audioOut [][]S, midiIn, midiOut *midi.Buffer, playHead processor.PlayHead, io IOBuffers) {
	numSamples := 0
	if len(audioOut) > 0 {
		numSamples = len(audioOut[0])
	} else if len(audioIn) > 0 {
		numSamples = len(audioIn[0])
	}
	s.prepareWorkspace(numSamples)

	for i := range s.workspace {
		for j := range s.workspace[i] {
			s.workspace[i][j] = 0
		}
	}
	for i, buf := range io.AudioIn {
		if buf == 0 || i >= len(audioIn) {
			continue // buffer 0 is the read-only zero slot
		}
		copy(s.workspace[buf], audioIn[i])
	}

	for i := range s.midiPool {
		s.midiPool[i].Clear()
	}
	if midiIn != nil && io.MIDIIn >= 0 {
		s.midiPool[io.MIDIIn].CopyFrom(midiIn)
	}

	ctx := &Context[S]{
		AudioBuffers: s.workspace,
		MIDIBuffers:  s.midiPool,
		PlayHead:     playHead,
		NumSamples:   numSamples,
	}
	for _, op := range s.Ops {
		op.Run(ctx)
	}

	for i, buf := range io.AudioOut {
		if buf == 0 || i >= len(audioOut) {
			continue
		}
		copy(audioOut[i], s.workspace[buf])
	}
	if midiOut != nil && io.MIDIOut >= 0 {
		midiOut.CopyFrom(&s.midiPool[io.MIDIOut])
	}
}

// Perform is the entry point the coordinator calls per audio callback. If
// the caller's block fits within MaxBlockSize it is a single Run; otherwise
// it is split into chunks of MaxBlockSize, each spliced independently,
// mirroring §4.4's chunking rule — the play head passed to chunks after
// the first is the same pointer handed to the whole call, so it becomes
// stale for those chunks by the policy recorded in SPEC_FULL.md's Open
// Question Decisions, not by any special-cased "this is a partial chunk"
// signal.
func (s *Sequence[S]) Perform(audioIn, audioOut [][]S, midiIn, midiOut *midi.Buffer, playHead processor.PlayHead, io IOBuffers) {
	total := 0
	if len(audioOut) > 0 {
		total = len(audioOut[0])
	} else if len(audioIn) > 0 {
		total = len(audioIn[0])
	}

	max := s.MaxBlockSize()
	if max <= 0 || total <= max {
		s.Run(audioIn, audioOut, midiIn, midiOut, playHead, io)
		return
	}

	if midiOut != nil {
		midiOut.Clear()
	}

	for start := 0; start < total; start += max {
		n := max
		if start+n > total {
			n = total - start
		}

		chunkIn := s.sliceChunk(&s.chunkAudioIn, audioIn, start, n)
		chunkOut := s.sliceChunk(&s.chunkAudioOut, audioOut, start, n)

		var chunkMIDIIn *midi.Buffer
		if midiIn != nil {
			s.chunkMIDIIn.Clear()
			s.chunkMIDIIn.AddEvents(midiIn, int32(start), int32(n), -int32(start))
			chunkMIDIIn = &s.chunkMIDIIn
		}
		var chunkMIDIOut *midi.Buffer
		if midiOut != nil {
			s.chunkMIDIOut.Clear()
			chunkMIDIOut = &s.chunkMIDIOut
		}

		s.Run(chunkIn, chunkOut, chunkMIDIIn, chunkMIDIOut, playHead, io)

		if midiOut != nil {
			midiOut.AddEvents(chunkMIDIOut, 0, int32(n), int32(start))
		}
	}
}

// sliceChunk re-views channels over [start:start+n] into *scratch, reusing
// its backing array across calls rather than allocating a new outer slice
// whenever the channel count is unchanged — only the inner sub-slice
// headers are reassigned per call.
func (s *Sequence[S]) sliceChunk(scratch *[][]S, channels [][]S, start, n int) [][]S {
	if channels == nil {
		return nil
	}
	if len(*scratch) != len(channels) {
		*scratch = make([][]S, len(channels))
	}
	for i, ch := range channels {
		(*scratch)[i] = ch[start : start+n]
	}
	return *scratch
}

// Clear zeroes audioIO and midiIO in place — used when no live sequence is
// available, or when the published sequence's settings have drifted from
// what the host most recently requested (§4.7, §8 invariant 9).
func Clear[S Sample](audioIO [][]S, midiIO *midi.Buffer) {
	for _, ch := range audioIO {
		for i := range ch {
			ch[i] = 0
		}
	}
	if midiIO != nil {
		midiIO.Clear()
	}
}
