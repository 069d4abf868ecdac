package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func midiStub(accepts, produces bool) *coordStub {
	return &coordStub{numIn: 0, numOut: 0, acceptsMIDI: accepts, producesMIDI: produces}
}

func TestConnectionSetLegalRejectsUnknownEndpoints(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: 999, ChannelIndex: 0}}
	require.False(t, cs.Legal(r, c))
}

func TestConnectionSetLegalRejectsSelfLoop(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 1}}
	require.False(t, cs.Legal(r, c))
}

func TestConnectionSetLegalRejectsOutOfRangeChannel(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 2}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}
	require.False(t, cs.Legal(r, c))
}

func TestConnectionSetLegalRejectsMixedAudioAndMIDI(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(midiStub(true, true), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: MIDIChannel}}
	require.False(t, cs.Legal(r, c))
}

func TestConnectionSetLegalAcceptsMIDIWhenBothEndpointsSupportIt(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(midiStub(false, true), 0)
	require.NoError(t, err)
	b, err := r.Add(midiStub(true, false), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: MIDIChannel}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: MIDIChannel}}
	require.True(t, cs.Legal(r, c))
}

func TestConnectionSetLegalRejectsMIDIWhenDestinationDoesNotAccept(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(midiStub(false, true), 0)
	require.NoError(t, err)
	b, err := r.Add(midiStub(false, false), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: MIDIChannel}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: MIDIChannel}}
	require.False(t, cs.Legal(r, c))
}

func TestConnectionSetAddRejectsDuplicateEdge(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}
	require.NoError(t, cs.Add(r, c))
	require.ErrorIs(t, cs.Add(r, c), ErrAlreadyConnected)
}

func TestConnectionSetAddRejectsIllegalConnection(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: 999, ChannelIndex: 0}}
	require.ErrorIs(t, cs.Add(r, c), ErrIllegalConnection)
}

func TestConnectionSetRemoveAndIsConnected(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}
	require.NoError(t, cs.Add(r, c))
	require.True(t, cs.IsConnected(c))

	require.True(t, cs.Remove(c))
	require.False(t, cs.IsConnected(c))
	require.False(t, cs.Remove(c))
}

func TestConnectionSetDisconnectNodeRemovesBothDirections(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	c3, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	require.NoError(t, cs.Add(r, Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}))
	require.NoError(t, cs.Add(r, Connection{Source: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: c3.ID(), ChannelIndex: 0}}))

	require.True(t, cs.DisconnectNode(b.ID()))
	require.Empty(t, cs.GetConnections())
}

func TestConnectionSetRemoveIllegalPrunesStaleEdges(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	c := Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}
	require.NoError(t, cs.Add(r, c))

	r.Remove(b.ID())
	require.True(t, cs.RemoveIllegal(r))
	require.False(t, cs.IsConnected(c))
}

func TestConnectionSetIsInputToFollowsTransitiveChain(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	c3, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	require.NoError(t, cs.Add(r, Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}))
	require.NoError(t, cs.Add(r, Connection{Source: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: c3.ID(), ChannelIndex: 0}}))

	require.True(t, cs.IsInputTo(a.ID(), c3.ID()))
	require.False(t, cs.IsInputTo(c3.ID(), a.ID()))
}

func TestConnectionSetGetConnectionsIsSortedAndDeduplicated(t *testing.T) {
	r := NewRegistry()
	a, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	b, err := r.Add(stereoStub(), 0)
	require.NoError(t, err)
	cs := NewConnectionSet()

	require.NoError(t, cs.Add(r, Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 1}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 1}}))
	require.NoError(t, cs.Add(r, Connection{Source: NodeAndChannel{NodeID: a.ID(), ChannelIndex: 0}, Destination: NodeAndChannel{NodeID: b.ID(), ChannelIndex: 0}}))

	conns := cs.GetConnections()
	require.Len(t, conns, 2)
	require.True(t, conns[0].Less(conns[1]))
}
