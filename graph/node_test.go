package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddAssignsAutoIncrementingIDsWhenZero(t *testing.T) {
	r := NewRegistry()
	n1, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	n2, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	require.NotEqual(t, n1.ID(), n2.ID())
	require.Greater(t, n2.ID(), n1.ID())
}

func TestRegistryAddAcceptsExplicitIDAndKeepsAutoCounterAbovePeak(t *testing.T) {
	r := NewRegistry()
	explicit, err := r.Add(stereoStub(), 50)
	require.NoError(t, err)
	require.Equal(t, NodeID(50), explicit.ID())

	auto, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	require.Greater(t, auto.ID(), NodeID(50))
}

func TestRegistryAddRejectsNilProcessor(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(nil, 0)
	require.ErrorIs(t, err, ErrNilProcessor)
}

func TestRegistryAddRejectsReservedID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(stereoStub(), maxUserNodeID+1)
	require.ErrorIs(t, err, ErrReservedNodeID)
}

func TestRegistryAddRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(stereoStub(), 7)
	require.NoError(t, err)
	_, err = r.Add(stereoStub(), 7)
	require.ErrorIs(t, err, ErrDuplicateNodeID)
}

func TestRegistryAddRejectsSameProcessorTwice(t *testing.T) {
	r := NewRegistry()
	p := stereoStub()
	_, err := r.Add(p, 0)
	require.NoError(t, err)
	_, err = r.Add(p, 0)
	require.ErrorIs(t, err, ErrDuplicateProcessor)
}

func TestRegistryLookupAndRemove(t *testing.T) {
	r := NewRegistry()
	n, err := r.Add(stereoStub(), 3)
	require.NoError(t, err)

	require.Equal(t, n, r.Lookup(3))
	require.Nil(t, r.Lookup(4))

	removed := r.Remove(3)
	require.Equal(t, n, removed)
	require.Nil(t, r.Lookup(3))
	require.Nil(t, r.Remove(3))
}

func TestRegistryNodesStaysSortedByID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(stereoStub(), 30)
	require.NoError(t, err)
	_, err = r.Add(stereoStub(), 10)
	require.NoError(t, err)
	_, err = r.Add(stereoStub(), 20)
	require.NoError(t, err)

	ids := make([]NodeID, 0, 3)
	for _, n := range r.Nodes() {
		ids = append(ids, n.ID())
	}
	require.Equal(t, []NodeID{10, 20, 30}, ids)
	require.Equal(t, 3, r.Len())
}

func TestNodeSetBypassedIsObservableThroughBypassed(t *testing.T) {
	r := NewRegistry()
	n, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	require.False(t, n.Bypassed())
	n.SetBypassed(true)
	require.True(t, n.Bypassed())
}
