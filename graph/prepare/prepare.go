// Package prepare tracks each node's "prepared with settings S" state (C3),
// keeping it coherent with the graph's most recently requested settings.
package prepare

import (
	"sync"

	"github.com/riftaudio/graphengine/graph/processor"
)

// Precision selects which sample width the graph is running at.
type Precision int

const (
	Single Precision = iota
	Double
)

// Settings is the sample-rate/block-size/precision tuple a graph (and every
// node in it) is currently prepared to run at. Equality is structural.
type Settings struct {
	Precision  Precision
	SampleRate float64
	BlockSize  int
}

// NodeRef is the minimal view of a graph.Node that Tracker.Apply needs;
// defined here (rather than accepting graph.Node directly) so this package
// never imports graph — graph imports prepare, not the reverse.
type NodeRef struct {
	ID        uint32
	Processor processor.Processor
}

// Tracker holds the host's most recently requested settings (next), the
// settings nodes are actually prepared with (current), and the set of node
// ids already prepared against current.
type Tracker struct {
	mu            sync.Mutex
	next, current *Settings
	prepared      map[uint32]struct{}
}

// NewTracker returns a tracker with no settings requested yet.
func NewTracker() *Tracker {
	return &Tracker{prepared: make(map[uint32]struct{})}
}

// SetState stores the settings the host most recently requested. Called
// from the topology thread; safe to call from any thread.
func (t *Tracker) SetState(s *Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = s
}

// LastRequestedSettings returns whatever SetState most recently stored.
// Called from the audio thread to compare against a render sequence's
// PrepareSettings (settings-drift detection, §4.7/§7).
func (t *Tracker) LastRequestedSettings() *Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Apply reconciles current with next and prepares/releases nodes
// accordingly. Must be called from the topology-mutating thread, and never
// while any lock the audio thread's process call might take is held — see
// the package doc and §4.3's rationale: prepareToPlay/releaseResources must
// never race with processBlock on the same processor, and the implied
// mutual exclusion on each processor is relied on instead of an explicit
// lock here.
//
// If next differs from current (the first request after no settings counts
// as a change), every node in nodes is released, whether or not it was
// prepared, and the prepared set is cleared. Then, if current is non-nil, every node
// not yet in the prepared set is assigned a precision (double only if it
// supports double and current requests double), told the new rate/block
// size, and prepared. Returns the settings that were applied (nil if the
// graph has no settings, i.e. has been released).
func (t *Tracker) Apply(nodes []NodeRef) (*Settings, error) {
	settingsChanged := func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		changed := !settingsEqual(t.current, t.next)
		t.current = t.next
		return changed
	}()

	if settingsChanged {
		for _, n := range nodes {
			n.Processor.ReleaseResources()
		}
		t.prepared = make(map[uint32]struct{})
	}

	t.mu.Lock()
	current := t.current
	t.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	for _, n := range nodes {
		if _, ok := t.prepared[n.ID]; ok {
			continue
		}
		t.prepared[n.ID] = struct{}{}

		p := n.Processor
		useDouble := current.Precision == Double && p.SupportsDoublePrecision()
		p.SetProcessingPrecision(useDouble)
		p.SetRateAndBlockSize(current.SampleRate, current.BlockSize)
		if err := p.PrepareToPlay(current.SampleRate, current.BlockSize); err != nil {
			return nil, err
		}
	}

	return current, nil
}

func settingsEqual(a, b *Settings) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
