package main

import (
	"fmt"

	"github.com/riftaudio/graphengine/graph"
	"github.com/riftaudio/graphengine/graph/ioendpoint"
	"github.com/riftaudio/graphengine/graph/processor"
	"github.com/riftaudio/graphengine/nodes/analyzer"
	"github.com/riftaudio/graphengine/nodes/wavio"
)

// builtGraph bundles the coordinator with the bits a driver loop needs
// that the coordinator itself doesn't track: the node one-shot readers so
// the loop knows when the bounce is finished.
type builtGraph struct {
	coord   *graph.Coordinator
	readers []*wavio.Reader
}

func buildGraph(t *topology) (*builtGraph, error) {
	coord := graph.NewCoordinator()
	byID := make(map[string]*graph.Node, len(t.Nodes))
	bg := &builtGraph{coord: coord}

	for _, spec := range t.Nodes {
		if spec.ID == "" {
			return nil, fmt.Errorf("node missing id")
		}
		if _, exists := byID[spec.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", spec.ID)
		}

		p, reader, err := newProcessor(spec, t)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
		n, err := coord.AddNode(p, graph.Sync)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", spec.ID, err)
		}
		byID[spec.ID] = n
		if reader != nil {
			bg.readers = append(bg.readers, reader)
		}
	}

	for _, cspec := range t.Connections {
		src, ok := byID[cspec.From]
		if !ok {
			return nil, fmt.Errorf("connection references unknown node %q", cspec.From)
		}
		dst, ok := byID[cspec.To]
		if !ok {
			return nil, fmt.Errorf("connection references unknown node %q", cspec.To)
		}
		conn := graph.Connection{
			Source:      graph.NodeAndChannel{NodeID: src.ID(), ChannelIndex: cspec.FromChannel},
			Destination: graph.NodeAndChannel{NodeID: dst.ID(), ChannelIndex: cspec.ToChannel},
		}
		if err := coord.AddConnection(conn, graph.Sync); err != nil {
			return nil, fmt.Errorf("connection %s:%d -> %s:%d: %w", cspec.From, cspec.FromChannel, cspec.To, cspec.ToChannel, err)
		}
	}

	return bg, nil
}

func newProcessor(spec nodeSpec, t *topology) (p processor.Processor, reader *wavio.Reader, err error) {
	switch spec.Type {
	case "wav_in":
		r := wavio.NewReader(spec.Path, spec.Channels)
		return r, r, nil
	case "wav_out":
		bitDepth := spec.BitDepth
		if bitDepth == 0 {
			bitDepth = 16
		}
		return wavio.NewWriter(spec.Path, spec.Channels, int(t.SampleRate), bitDepth), nil, nil
	case "analyzer":
		fftSize := spec.FFTSize
		if fftSize == 0 {
			fftSize = 1024
		}
		return analyzer.New(spec.Channels, fftSize), nil, nil
	case "audio_in":
		return ioendpoint.NewAudioIn(spec.Channels), nil, nil
	case "audio_out":
		return ioendpoint.NewAudioOut(spec.Channels), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown node type %q", spec.Type)
	}
}
