// Package compile turns a topology (graph.Registry + graph.ConnectionSet)
// and a prepare.Settings into a render.Sequence for each sample precision
// (C5): node ordering, buffer-pool assignment with latency compensation,
// grounded directly on JUCE's RenderSequenceBuilder in
// juce_AudioProcessorGraph.cpp.
package compile

import (
	"errors"

	"github.com/rs/xid"

	"github.com/riftaudio/graphengine/graph"
	"github.com/riftaudio/graphengine/graph/ioendpoint"
	"github.com/riftaudio/graphengine/graph/prepare"
	"github.com/riftaudio/graphengine/graph/render"
)

// ErrLatencyMismatch is returned if the float and double twins somehow
// report different latency — they never should, since LatencySamples is
// computed purely from topology and each processor's reported latency,
// neither of which depends on sample precision (§4.5.4, §8 invariant 8).
var ErrLatencyMismatch = errors.New("compile: float and double twins report different latency")

// tag identifies what a buffer pool slot currently holds.
type tag int

const (
	tagFree tag = iota
	tagAnon
	tagAssigned
)

// slot is one entry in a buffer pool — the Go realization of JUCE's
// AssignedBuffer, with the sentinel-NodeID trick (anonNodeID/zeroNodeID/
// freeNodeID) replaced by an explicit tagged variant per SPEC_FULL.md's
// design notes.
type slot struct {
	tag     tag
	channel graph.NodeAndChannel
}

// builder holds the mutable state RenderSequenceBuilder threads through
// one compile pass for a single precision.
type builder[S render.Sample] struct {
	conns   *graph.ConnectionSet
	ordered []*graph.Node

	audio []slot
	midi  []slot

	delays       map[graph.NodeID]int
	totalLatency int

	ops []render.Op[S]

	// ioAudio/ioMIDI capture the live buffer indices an I/O endpoint node's
	// own emitNode call assigned it, at the moment it is emitted. Reading
	// a slot's tag back out after the fact doesn't work: tagAssigned only
	// ever records a node's own identity when that node produces the
	// channel in question (see emitNode's ch < numOuts / ProducesMIDI
	// gates), so an audio_out/midi_out node — which never produces
	// anything — would never be found that way.
	ioAudio map[graph.NodeID][]int
	ioMIDI  map[graph.NodeID]int
}

// Result is everything compiling one topology produces: the two precision
// twins, the shared I/O buffer map, and the whole-graph latency (identical
// across twins — asserted by the caller, §4.5.4).
type Result struct {
	Float  *render.Sequence[float32]
	Double *render.Sequence[float64]
	IO     render.IOBuffers
	Latency int
}

// Build compiles registry/conns against settings, producing both precision
// twins. It never mutates the registry or connection set.
func Build(registry *graph.Registry, conns *graph.ConnectionSet, settings *prepare.Settings) (*Result, error) {
	ordered := orderNodes(registry, conns)

	fb := &builder[float32]{conns: conns, ordered: ordered, delays: map[graph.NodeID]int{}}
	fseq, fio := fb.run(settings)

	db := &builder[float64]{conns: conns, ordered: ordered, delays: map[graph.NodeID]int{}}
	dseq, _ := db.run(settings)

	if fb.totalLatency != db.totalLatency {
		return nil, ErrLatencyMismatch
	}

	gen := xid.New().String()
	fseq.GenerationID = gen
	dseq.GenerationID = gen

	return &Result{Float: fseq, Double: dseq, IO: fio, Latency: fb.totalLatency}, nil
}

// orderNodes produces createOrderedNodeList's result: a list tolerant of
// cycles, topological on acyclic subgraphs, deterministic inside any
// strongly-connected region (spec.md §4.5.1).
func orderNodes(registry *graph.Registry, conns *graph.ConnectionSet) []*graph.Node {
	var result []*graph.Node
	parentsOf := map[graph.NodeID]map[graph.NodeID]struct{}{}

	for _, n := range registry.Nodes() {
		id := n.ID()
		insertAt := len(result)
		for i, placed := range result {
			if _, isParent := parentsOf[placed.ID()][id]; isParent {
				insertAt = i
				break
			}
		}
		result = append(result, nil)
		copy(result[insertAt+1:], result[insertAt:])
		result[insertAt] = n

		parentsOf[id] = map[graph.NodeID]struct{}{}
		collectParents(id, parentsOf[id], parentsOf, conns)
	}

	return result
}

// collectParents is getAllParentsOfNode: transitively walk source edges
// into child, reusing previously computed parent sets where available.
func collectParents(child graph.NodeID, parents map[graph.NodeID]struct{}, known map[graph.NodeID]map[graph.NodeID]struct{}, conns *graph.ConnectionSet) {
	for _, p := range conns.SourcesOfNode(child) {
		if p == child {
			continue
		}
		if _, already := parents[p]; already {
			continue
		}
		parents[p] = struct{}{}

		if known, ok := known[p]; ok {
			for gp := range known {
				parents[gp] = struct{}{}
			}
			continue
		}
		collectParents(p, parents, known, conns)
	}
}

func (b *builder[S]) run(settings *prepare.Settings) (*render.Sequence[S], render.IOBuffers) {
	b.audio = []slot{{tag: tagAssigned, channel: graph.NodeAndChannel{}}} // slot 0: read-only zero
	b.midi = []slot{{tag: tagAssigned, channel: graph.NodeAndChannel{}}}
	// slot 0 is never handed out by getFreeBuffer (its scan starts at 1) and
	// never matches a real (node,channel), so tagging it tagAssigned with the
	// zero NodeAndChannel is safe: no real node ever has id 0 (Registry.Add
	// starts auto ids at 1) and getBufferContaining only matches on an exact
	// (node,channel) pair. freeUnused retags it tagFree after the first
	// step, which changes nothing for the same reasons.

	for i, n := range b.ordered {
		b.emitNode(n, i)
		b.freeUnused(&b.audio, i)
		b.freeUnused(&b.midi, i)
	}

	io := b.ioBuffers()

	seq := render.NewSequence[S](len(b.audio), len(b.midi), settings)
	seq.Ops = b.ops
	seq.LatencySamples = b.totalLatency
	return seq, io
}

// ioBuffers reports which pool buffers the compiler assigned to the
// registry's I/O endpoint nodes, in ascending channel order, so
// render.Sequence.Run knows where to splice the caller's buffers. The
// indices come from ioAudio/ioMIDI, captured by emitNode at the moment
// each endpoint node itself was emitted.
func (b *builder[S]) ioBuffers() render.IOBuffers {
	io := render.IOBuffers{MIDIIn: -1, MIDIOut: -1}
	for _, n := range b.ordered {
		role, ok := n.Processor().(ioendpoint.RoleProcessor)
		if !ok {
			continue
		}
		switch role.IOGraphRole() {
		case ioendpoint.AudioIn:
			io.AudioIn = append(io.AudioIn, b.ioAudio[n.ID()]...)
		case ioendpoint.AudioOut:
			io.AudioOut = append(io.AudioOut, b.ioAudio[n.ID()]...)
		case ioendpoint.MIDIIn:
			io.MIDIIn = b.ioMIDI[n.ID()]
		case ioendpoint.MIDIOut:
			io.MIDIOut = b.ioMIDI[n.ID()]
		}
	}
	return io
}

func getFreeBuffer(pool *[]slot) int {
	for i := 1; i < len(*pool); i++ {
		if (*pool)[i].tag == tagFree {
			return i
		}
	}
	*pool = append(*pool, slot{tag: tagFree})
	return len(*pool) - 1
}

func (b *builder[S]) getBufferContaining(src graph.NodeAndChannel) int {
	pool := &b.audio
	if src.IsMIDI() {
		pool = &b.midi
	}
	for i, s := range *pool {
		if s.tag == tagAssigned && s.channel == src {
			return i
		}
	}
	return -1
}

// inputLatency mirrors getInputLatencyForNode: the max delay over every
// distinct source NODE feeding any destination channel of id.
func (b *builder[S]) inputLatency(id graph.NodeID) int {
	max := 0
	for _, src := range b.conns.SourcesOfNode(id) {
		if d := b.delays[src]; d > max {
			max = d
		}
	}
	return max
}

// noIgnoredChannel is the "don't ignore anything" reset value passed to
// neededLater after its first scanned step. It must differ from every
// real channel index (>= 0) and from graph.MIDIChannel, since a later
// step's self-check must never be silently skipped the way the *current*
// node's self-check deliberately is.
const noIgnoredChannel = -2

// freeUnused is markAnyUnusedBuffersAsFree: any assigned slot no longer
// needed by a later step reverts to free.
func (b *builder[S]) freeUnused(pool *[]slot, step int) {
	for i := range *pool {
		s := &(*pool)[i]
		if s.tag == tagAssigned && !b.neededLater(step, noIgnoredChannel, s.channel) {
			s.tag = tagFree
		}
	}
}

// neededLater is isBufferNeededLater: walk forward from step, asking
// whether any later node still has a live edge from output. The first
// scanned step is always the node currently being emitted, and
// ignoreInputChannel there names the one input/MIDI port of *that* node
// that the caller is busy resolving and which therefore must not count as
// a future need of itself; every step after that checks every channel.
func (b *builder[S]) neededLater(step int, ignoreInputChannel int, output graph.NodeAndChannel) bool {
	for ; step < len(b.ordered); step++ {
		node := b.ordered[step]
		if output.IsMIDI() {
			if ignoreInputChannel != graph.MIDIChannel &&
				b.conns.IsConnected(graph.Connection{
					Source:      graph.NodeAndChannel{NodeID: output.NodeID, ChannelIndex: graph.MIDIChannel},
					Destination: graph.NodeAndChannel{NodeID: node.ID(), ChannelIndex: graph.MIDIChannel},
				}) {
				return true
			}
		} else {
			for i := 0; i < node.Processor().NumInputChannels(); i++ {
				if i != ignoreInputChannel &&
					b.conns.IsConnected(graph.Connection{Source: output, Destination: graph.NodeAndChannel{NodeID: node.ID(), ChannelIndex: i}}) {
					return true
				}
			}
		}
		ignoreInputChannel = noIgnoredChannel
	}
	return false
}

func (b *builder[S]) emitNode(n *graph.Node, step int) {
	p := n.Processor()
	numIns, numOuts := p.NumInputChannels(), p.NumOutputChannels()
	totalChans := numIns
	if numOuts > totalChans {
		totalChans = numOuts
	}
	maxLatency := b.inputLatency(n.ID())

	buffers := make([]int, 0, totalChans)
	for ch := 0; ch < numIns; ch++ {
		idx := b.findInputAudioChannel(n, ch, step, maxLatency)
		buffers = append(buffers, idx)
		if ch < numOuts {
			b.audio[idx] = slot{tag: tagAssigned, channel: graph.NodeAndChannel{NodeID: n.ID(), ChannelIndex: ch}}
		}
	}
	for ch := numIns; ch < numOuts; ch++ {
		idx := getFreeBuffer(&b.audio)
		buffers = append(buffers, idx)
		b.audio[idx] = slot{tag: tagAssigned, channel: graph.NodeAndChannel{NodeID: n.ID(), ChannelIndex: ch}}
	}

	midiIdx := b.findInputMIDIChannel(n, step)
	if p.ProducesMIDI() {
		b.midi[midiIdx] = slot{tag: tagAssigned, channel: graph.NodeAndChannel{NodeID: n.ID(), ChannelIndex: graph.MIDIChannel}}
	}

	if _, ok := p.(ioendpoint.RoleProcessor); ok {
		if b.ioAudio == nil {
			b.ioAudio = map[graph.NodeID][]int{}
		}
		b.ioAudio[n.ID()] = append([]int(nil), buffers...)
		if b.ioMIDI == nil {
			b.ioMIDI = map[graph.NodeID]int{}
		}
		b.ioMIDI[n.ID()] = midiIdx
	}

	b.delays[n.ID()] = maxLatency + p.LatencySamples()
	if numOuts == 0 {
		if maxLatency > b.totalLatency {
			b.totalLatency = maxLatency
		}
	}

	b.ops = append(b.ops, render.NewProcessOp[S](p, n.Bypassed, render.ChannelMap{
		Buffers: buffers,
		NumIn:   numIns,
		NumOut:  numOuts,
	}, midiIdx))
}

func (b *builder[S]) findInputAudioChannel(n *graph.Node, inputChan, step, maxLatency int) int {
	p := n.Processor()
	numOuts := p.NumOutputChannels()
	sources := b.conns.SourcesOf(graph.NodeAndChannel{NodeID: n.ID(), ChannelIndex: inputChan})

	if len(sources) == 0 {
		if inputChan >= numOuts {
			return 0
		}
		idx := getFreeBuffer(&b.audio)
		b.ops = append(b.ops, render.NewClearOp[S](idx))
		return idx
	}

	if len(sources) == 1 {
		src := sources[0]
		bufIdx := b.getBufferContaining(src)
		if bufIdx < 0 {
			bufIdx = 0 // feedback loop: producer not yet emitted, read zero
		}

		if inputChan < numOuts && b.neededLater(step, inputChan, src) {
			fresh := getFreeBuffer(&b.audio)
			b.ops = append(b.ops, render.NewCopyOp[S](bufIdx, fresh))
			bufIdx = fresh
		}

		if d := b.delays[src.NodeID]; d < maxLatency {
			b.ops = append(b.ops, render.NewDelayOp[S](bufIdx, maxLatency-d))
		}
		return bufIdx
	}

	// Multiple sources: find a reusable one to use as the accumulator.
	reusable := -1
	bufIdx := -1
	for i, src := range sources {
		srcBuf := b.getBufferContaining(src)
		if srcBuf >= 0 && !b.neededLater(step, inputChan, src) {
			reusable = i
			bufIdx = srcBuf
			if d := b.delays[src.NodeID]; d < maxLatency {
				b.ops = append(b.ops, render.NewDelayOp[S](bufIdx, maxLatency-d))
			}
			break
		}
	}

	if reusable < 0 {
		bufIdx = getFreeBuffer(&b.audio)
		b.audio[bufIdx] = slot{tag: tagAnon}

		first := sources[0]
		srcIdx := b.getBufferContaining(first)
		if srcIdx < 0 {
			b.ops = append(b.ops, render.NewClearOp[S](bufIdx))
		} else {
			b.ops = append(b.ops, render.NewCopyOp[S](srcIdx, bufIdx))
		}
		reusable = 0
		if d := b.delays[first.NodeID]; d < maxLatency {
			b.ops = append(b.ops, render.NewDelayOp[S](bufIdx, maxLatency-d))
		}
	}

	for i, src := range sources {
		if i == reusable {
			continue
		}
		srcIdx := b.getBufferContaining(src)
		if srcIdx < 0 {
			continue
		}
		if d := b.delays[src.NodeID]; d < maxLatency {
			if !b.neededLater(step, inputChan, src) {
				b.ops = append(b.ops, render.NewDelayOp[S](srcIdx, maxLatency-d))
			} else {
				delayed := getFreeBuffer(&b.audio)
				b.ops = append(b.ops, render.NewCopyOp[S](srcIdx, delayed))
				b.ops = append(b.ops, render.NewDelayOp[S](delayed, maxLatency-d))
				srcIdx = delayed
			}
		}
		b.ops = append(b.ops, render.NewAddOp[S](srcIdx, bufIdx))
	}

	return bufIdx
}

func (b *builder[S]) findInputMIDIChannel(n *graph.Node, step int) int {
	p := n.Processor()
	sources := b.conns.SourcesOf(graph.NodeAndChannel{NodeID: n.ID(), ChannelIndex: graph.MIDIChannel})

	if len(sources) == 0 {
		idx := getFreeBuffer(&b.midi)
		if p.AcceptsMIDI() || p.ProducesMIDI() {
			b.ops = append(b.ops, render.NewClearMIDIOp[S](idx))
		}
		return idx
	}

	if len(sources) == 1 {
		src := sources[0]
		idx := b.getBufferContaining(src)
		if idx >= 0 {
			if b.neededLater(step, graph.MIDIChannel, src) {
				fresh := getFreeBuffer(&b.midi)
				b.ops = append(b.ops, render.NewCopyMIDIOp[S](idx, fresh))
				idx = fresh
			}
			return idx
		}
		return getFreeBuffer(&b.midi)
	}

	reusable := -1
	idx := -1
	for i, src := range sources {
		srcIdx := b.getBufferContaining(src)
		if srcIdx >= 0 && !b.neededLater(step, graph.MIDIChannel, src) {
			reusable = i
			idx = srcIdx
			break
		}
	}

	if reusable < 0 {
		idx = getFreeBuffer(&b.midi)
		first := b.getBufferContaining(sources[0])
		if first >= 0 {
			b.ops = append(b.ops, render.NewCopyMIDIOp[S](first, idx))
		} else {
			b.ops = append(b.ops, render.NewClearMIDIOp[S](idx))
		}
		reusable = 0
	}

	for i, src := range sources {
		if i == reusable {
			continue
		}
		srcIdx := b.getBufferContaining(src)
		if srcIdx >= 0 {
			b.ops = append(b.ops, render.NewAddMIDIOp[S](srcIdx, idx))
		}
	}

	return idx
}
