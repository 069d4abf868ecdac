package graph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/riftaudio/graphengine/graph/compile"
	"github.com/riftaudio/graphengine/graph/exchange"
	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/prepare"
	"github.com/riftaudio/graphengine/graph/processor"
	"github.com/riftaudio/graphengine/graph/render"
	applog "github.com/riftaudio/graphengine/internal/log"
	"github.com/riftaudio/graphengine/internal/metrics"
)

// UpdateKind selects how a topology mutation schedules its recompile
// (§4.7): Sync runs the recompile inline before the mutating call returns;
// Async marks the graph dirty and lets the coalescing scheduler run it.
type UpdateKind int

const (
	Sync UpdateKind = iota
	Async
)

// liveSequence bundles one compiled generation's precision twins with the
// settings the audio thread checks for drift before trusting them.
type liveSequence struct {
	result   *compile.Result
	settings *prepare.Settings
}

// Coordinator is the public surface (C7). It owns the node registry,
// connection set, and preparation tracker (mutated only from the topology
// thread, under mu), and publishes compiled render sequences to the audio
// thread through a wait-free exchange.
//
// This port collapses JUCE's notion of "the topology thread" into "the one
// goroutine the host confines topology mutation to" — Go has no cheap way
// to assert thread/goroutine identity, and the exchange/mutex discipline
// already requires single-writer access, so Sync always recompiles inline
// on the caller's goroutine rather than checking a thread id first.
type Coordinator struct {
	mu       sync.Mutex
	registry *Registry
	conns    *ConnectionSet
	prep     *prepare.Tracker

	exch *exchange.Exchange[liveSequence]
	log  *logrus.Logger

	nonRealtime  atomic.Bool
	asyncPending atomic.Bool
	recompile1   singleflight.Group
}

// NewCoordinator returns an empty graph with no settings requested yet.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		registry: NewRegistry(),
		conns:    NewConnectionSet(),
		prep:     prepare.NewTracker(),
		exch:     exchange.New[liveSequence](),
		log:      applog.New(),
	}
}

// AddNode wraps p in a new node with an auto-assigned id and schedules a
// recompile per kind.
func (c *Coordinator) AddNode(p processor.Processor, kind UpdateKind) (*Node, error) {
	c.mu.Lock()
	n, err := c.registry.Add(p, 0)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.log.WithField("node_id", n.ID()).Debug("node added")
	c.topologyChanged(kind)
	return n, nil
}

// RemoveNode removes the node (and every connection touching it) and
// schedules a recompile. The removed node's processor stays reachable for
// as long as any published sequence still closes over it directly — see
// §5's shared-ownership note; unlike JUCE, nothing here needs an explicit
// refcount, since Go's garbage collector already keeps the processor alive
// through the render ops' own closures until the janitor retires them.
func (c *Coordinator) RemoveNode(id NodeID, kind UpdateKind) *Node {
	c.mu.Lock()
	n := c.registry.Remove(id)
	if n != nil {
		c.conns.DisconnectNode(id)
	}
	c.mu.Unlock()
	if n == nil {
		return nil
	}
	c.log.WithField("node_id", id).Debug("node removed")
	c.topologyChanged(kind)
	return n
}

// AddConnection adds c if legal and not already present, scheduling a
// recompile on success.
func (c *Coordinator) AddConnection(conn Connection, kind UpdateKind) error {
	c.mu.Lock()
	err := c.conns.Add(c.registry, conn)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"source":      conn.Source,
		"destination": conn.Destination,
	}).Debug("connection added")
	c.topologyChanged(kind)
	return nil
}

// RemoveConnection removes conn, reporting whether it was present.
func (c *Coordinator) RemoveConnection(conn Connection, kind UpdateKind) bool {
	c.mu.Lock()
	removed := c.conns.Remove(conn)
	c.mu.Unlock()
	if !removed {
		return false
	}
	c.topologyChanged(kind)
	return true
}

// DisconnectNode removes every connection touching id.
func (c *Coordinator) DisconnectNode(id NodeID, kind UpdateKind) bool {
	c.mu.Lock()
	removed := c.conns.DisconnectNode(id)
	c.mu.Unlock()
	if !removed {
		return false
	}
	c.topologyChanged(kind)
	return true
}

// RemoveIllegalConnections prunes connections left dangling by removed
// nodes (§7 TopologyInconsistency recovery).
func (c *Coordinator) RemoveIllegalConnections(kind UpdateKind) bool {
	c.mu.Lock()
	removed := c.conns.RemoveIllegal(c.registry)
	c.mu.Unlock()
	if !removed {
		return false
	}
	c.topologyChanged(kind)
	return true
}

// Clear empties the registry and connection set. Every node's processor is
// released first, since Apply only releases the nodes it is handed (and
// only when the settings change), so nodes dropped from the registry here
// would otherwise never be released.
func (c *Coordinator) Clear(kind UpdateKind) {
	c.mu.Lock()
	for _, n := range c.registry.Nodes() {
		n.Processor().ReleaseResources()
	}
	c.registry = NewRegistry()
	c.conns = NewConnectionSet()
	c.mu.Unlock()
	c.log.Debug("graph cleared")
	c.topologyChanged(kind)
}

// PrepareToPlay requests the given settings (§4.3) and recompiles inline.
func (c *Coordinator) PrepareToPlay(sampleRate float64, blockSize int, precision prepare.Precision) {
	c.prep.SetState(&prepare.Settings{Precision: precision, SampleRate: sampleRate, BlockSize: blockSize})
	c.log.WithFields(logrus.Fields{"sample_rate": sampleRate, "block_size": blockSize, "precision": precision}).
		Info("prepare_to_play requested")
	c.recompileNow()
}

// ReleaseResources requests a nil settings state, releasing every node and
// publishing a nil live sequence.
func (c *Coordinator) ReleaseResources() {
	c.prep.SetState(nil)
	c.log.Info("release_resources requested")
	c.recompileNow()
}

// SetNonRealtime switches every node's processor to/from non-realtime mode
// and changes ProcessBlock's no-live-sequence behavior from silence to a
// busy-wait (§5 "Non-realtime mode").
func (c *Coordinator) SetNonRealtime(nonRealtime bool) {
	c.nonRealtime.Store(nonRealtime)
	c.mu.Lock()
	nodes := c.registry.Nodes()
	c.mu.Unlock()
	for _, n := range nodes {
		n.Processor().SetNonRealtime(nonRealtime)
	}
}

// Reset resets every node's processor without touching prepared state.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	nodes := c.registry.Nodes()
	c.mu.Unlock()
	for _, n := range nodes {
		n.Processor().Reset()
	}
}

// Queries — all delegate straight to the connection set under the
// topology lock; none of them are ever called from the audio thread.

func (c *Coordinator) IsConnected(conn Connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns.IsConnected(conn)
}

func (c *Coordinator) IsConnectionLegal(conn Connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns.Legal(c.registry, conn)
}

func (c *Coordinator) CanConnect(conn Connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns.CanConnect(c.registry, conn)
}

func (c *Coordinator) IsAnInputTo(a, b NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns.IsInputTo(a, b)
}

func (c *Coordinator) GetConnections() []Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns.GetConnections()
}

// topologyChanged is every mutating op's final step (§4.7).
func (c *Coordinator) topologyChanged(kind UpdateKind) {
	if kind == Sync {
		c.recompileNow()
		return
	}
	c.scheduleAsyncRecompile()
}

// scheduleAsyncRecompile is the edge-triggered coalescing scheduler (§9):
// one dirty flag, one pending recompile goroutine. Concurrent triggers
// that land while a recompile goroutine is already scheduled or running
// join it via singleflight instead of queuing another one.
func (c *Coordinator) scheduleAsyncRecompile() {
	if !c.asyncPending.CompareAndSwap(false, true) {
		return
	}
	go func() {
		c.asyncPending.Store(false)
		c.recompile1.Do("recompile", func() (any, error) {
			c.recompileNow()
			return nil, nil
		})
	}()
}

// recompileNow is the recompile procedure (§4.7): apply preparation state,
// compile both precision twins if settings are present, and publish. The
// topology lock is held for the whole call, including compile.Build's reads
// of the registry/connection set — JUCE's equivalent (handleAsyncUpdate)
// never runs concurrently with a topology mutation because both happen on
// the same message thread; holding mu here gets the same mutual exclusion
// without an actual shared thread, so a mutation issued while an async
// recompile is in flight simply blocks on c.mu until the compile finishes
// instead of racing compile.Build's unsynchronized reads against it.
func (c *Coordinator) recompileNow() {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodes := make([]prepare.NodeRef, len(c.registry.Nodes()))
	for i, n := range c.registry.Nodes() {
		nodes[i] = prepare.NodeRef{ID: uint32(n.ID()), Processor: n.Processor()}
	}
	registry := c.registry
	conns := c.conns

	settings, err := c.prep.Apply(nodes)
	if err != nil {
		c.log.WithError(err).Error("preparation apply failed")
		metrics.RecompileTotal.WithLabelValues("prepare_error").Inc()
		return
	}

	if settings == nil {
		c.publish(nil)
		metrics.RecompileTotal.WithLabelValues("released").Inc()
		return
	}

	started := time.Now()
	result, err := compile.Build(registry, conns, settings)
	metrics.RecompileDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		c.log.WithError(err).Error("compile failed")
		metrics.RecompileTotal.WithLabelValues("compile_error").Inc()
		return
	}

	c.publish(&liveSequence{result: result, settings: settings})
	metrics.RecompileTotal.WithLabelValues("ok").Inc()
	metrics.GraphLatencySamples.Set(float64(result.Latency))
	metrics.AudioBufferPoolSize.Set(float64(result.Float.NumAudioBuffers))
	metrics.MIDIBufferPoolSize.Set(float64(result.Float.NumMIDIBuffers))
	c.log.WithFields(logrus.Fields{
		"generation":      result.Float.GenerationID,
		"latency_samples": result.Latency,
	}).Info("recompiled render sequence")
}

func (c *Coordinator) publish(ls *liveSequence) {
	c.exch.Publish(ls)
	metrics.ExchangePublishTotal.Inc()
	metrics.PublishedGeneration.Inc()
}

// RunJanitor starts the low-frequency exchange janitor (§4.6) on its own
// goroutine and returns a function that stops it. Call once per
// Coordinator lifetime from the topology thread; never from the audio
// thread.
func (c *Coordinator) RunJanitor(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if stale := c.exch.Janitor(); stale != nil {
					metrics.ExchangeDropTotal.Inc()
					c.log.Debug("janitor collected a superseded render sequence")
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// acquireAndRun is the shared body of ProcessBlockF/ProcessBlockD: acquire
// the live sequence, handle the no-sequence and settings-drift cases per
// §7/§8 invariant 9, and otherwise run pick(live.result) against the
// caller's buffers.
func acquireAndRun[S render.Sample](c *Coordinator, audioIn, audioOut [][]S, midiIn, midiOut *midi.Buffer, playHead processor.PlayHead, pick func(*compile.Result) *render.Sequence[S]) {
	live := c.exch.Acquire()

	if live == nil {
		if c.nonRealtime.Load() {
			for live == nil {
				time.Sleep(time.Millisecond)
				live = c.exch.Acquire()
			}
		} else {
			render.Clear(audioOut, midiOut)
			return
		}
	}

	if live.settings == nil || !settingsMatch(live.settings, c.prep.LastRequestedSettings()) {
		render.Clear(audioOut, midiOut)
		return
	}

	seq := pick(live.result)
	seq.Perform(audioIn, audioOut, midiIn, midiOut, playHead, live.result.IO)
}

func settingsMatch(a, b *prepare.Settings) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ProcessBlockF runs one single-precision audio block (§4.7 process_block).
// In realtime mode it blocks on nothing beyond the exchange try-lock and
// each processor's own callback lock. It is not allocation-free: every
// render.Sequence.Run allocates its op context and each process op its
// buffer-view slice, and a block-size change or a precision mismatch
// allocates further buffers.
func (c *Coordinator) ProcessBlockF(audioIn, audioOut [][]float32, midiIn, midiOut *midi.Buffer, playHead processor.PlayHead) {
	acquireAndRun(c, audioIn, audioOut, midiIn, midiOut, playHead, func(r *compile.Result) *render.Sequence[float32] { return r.Float })
}

// ProcessBlockD is ProcessBlockF's double-precision twin.
func (c *Coordinator) ProcessBlockD(audioIn, audioOut [][]float64, midiIn, midiOut *midi.Buffer, playHead processor.PlayHead) {
	acquireAndRun(c, audioIn, audioOut, midiIn, midiOut, playHead, func(r *compile.Result) *render.Sequence[float64] { return r.Double })
}
