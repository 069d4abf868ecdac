package graph

import (
	"sort"
	"sync/atomic"

	"github.com/riftaudio/graphengine/graph/processor"
)

// Node owns exactly one processor. Nodes are reference types: once handed
// to a caller, a *Node stays valid (its Processor stays reachable) for as
// long as any published render sequence still references it, even after
// Registry.Remove has dropped it from the topology — see §5 on shared
// node ownership.
type Node struct {
	id        NodeID
	processor processor.Processor
	bypassed  atomic.Bool
}

// ID returns the node's identifier.
func (n *Node) ID() NodeID { return n.id }

// Processor returns the wrapped processor.
func (n *Node) Processor() processor.Processor { return n.processor }

// Bypassed reports whether the node is currently bypassed. Safe to call
// from the audio thread.
func (n *Node) Bypassed() bool { return n.bypassed.Load() }

// SetBypassed sets the bypass flag. Safe to call from either thread; takes
// effect on the next process call that reads it.
func (n *Node) SetBypassed(b bool) { n.bypassed.Store(b) }

// Registry is the ordered, id-keyed collection of nodes (C1). Nodes are
// kept sorted by id to permit O(log n) lookup by binary search, mirroring
// JUCE's Nodes class.
type Registry struct {
	nodes    []*Node
	lastID   NodeID
	nextAuto NodeID
}

// NewRegistry returns an empty node registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Lookup returns the node with the given id, or nil if none exists.
func (r *Registry) Lookup(id NodeID) *Node {
	i := r.search(id)
	if i < len(r.nodes) && r.nodes[i].id == id {
		return r.nodes[i]
	}
	return nil
}

// Nodes returns the registry's nodes in id order. The returned slice must
// not be mutated by the caller.
func (r *Registry) Nodes() []*Node { return r.nodes }

// Len reports the number of nodes in the registry.
func (r *Registry) Len() int { return len(r.nodes) }

// Add inserts a new node wrapping p, assigning it a monotonically
// increasing id if id is the zero value. It fails (returning nil and a
// sentinel error) if p is nil, p is already owned by another node in this
// registry, id is taken, or id falls in the reserved sentinel range.
func (r *Registry) Add(p processor.Processor, id NodeID) (*Node, error) {
	if p == nil {
		return nil, ErrNilProcessor
	}
	if id.IsReserved() {
		return nil, ErrReservedNodeID
	}
	for _, n := range r.nodes {
		if n.processor == p {
			return nil, ErrDuplicateProcessor
		}
	}

	idToUse := id
	if idToUse == 0 {
		r.nextAuto++
		idToUse = r.nextAuto
	}

	i := r.search(idToUse)
	if i < len(r.nodes) && r.nodes[i].id == idToUse {
		return nil, ErrDuplicateNodeID
	}

	n := &Node{id: idToUse, processor: p}
	r.nodes = append(r.nodes, nil)
	copy(r.nodes[i+1:], r.nodes[i:])
	r.nodes[i] = n

	if idToUse > r.lastID {
		r.lastID = idToUse
	}
	if idToUse > r.nextAuto {
		r.nextAuto = idToUse
	}
	return n, nil
}

// Remove removes and returns the node with the given id, or nil if none
// exists. The caller is responsible for keeping the removed node's
// processor alive until any render sequence still referencing it is
// retired (graph.Coordinator does this via the exchange janitor).
func (r *Registry) Remove(id NodeID) *Node {
	i := r.search(id)
	if i < len(r.nodes) && r.nodes[i].id == id {
		n := r.nodes[i]
		r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
		return n
	}
	return nil
}

// search returns the leftmost index at which id could be inserted to keep
// nodes sorted by id (binary search).
func (r *Registry) search(id NodeID) int {
	return sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i].id >= id })
}
