package render

import (
	"testing"

	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/prepare"
)

func settings(blockSize int) *prepare.Settings {
	return &prepare.Settings{SampleRate: 48000, BlockSize: blockSize}
}

func TestSequenceClearOp(t *testing.T) {
	s := NewSequence[float32](2, 0, settings(4))
	s.Ops = []Op[float32]{clearOp[float32]{ch: 1}}

	in := [][]float32{{1, 2, 3, 4}}
	out := [][]float32{{9, 9, 9, 9}}
	s.Run(in, out, nil, nil, nil, IOBuffers{AudioIn: []int{1}, AudioOut: []int{1}, MIDIIn: -1, MIDIOut: -1})

	for _, v := range out[0] {
		if v != 0 {
			t.Fatalf("expected zeroed output, got %v", out[0])
		}
	}
}

func TestSequenceCopyAndAdd(t *testing.T) {
	// buffer 1 = input, buffer 2 = copy of 1, buffer 3 = 1 + 2
	s := NewSequence[float32](4, 0, settings(4))
	s.Ops = []Op[float32]{
		copyOp[float32]{src: 1, dst: 2},
		copyOp[float32]{src: 1, dst: 3},
		addOp[float32]{src: 2, dst: 3},
	}

	in := [][]float32{{1, 2, 3, 4}}
	out := [][]float32{{0, 0, 0, 0}}
	s.Run(in, out, nil, nil, nil, IOBuffers{AudioIn: []int{1}, AudioOut: []int{3}, MIDIIn: -1, MIDIOut: -1})

	want := []float32{2, 4, 6, 8}
	for i, v := range out[0] {
		if v != want[i] {
			t.Fatalf("expected %v, got %v", want, out[0])
		}
	}
}

func TestSequenceDelayOp(t *testing.T) {
	s := NewSequence[float32](2, 0, settings(4))
	d := newDelayOp[float32](1, 2)
	s.Ops = []Op[float32]{d}

	in := [][]float32{{1, 2, 3, 4}}
	out := [][]float32{{0, 0, 0, 0}}
	io := IOBuffers{AudioIn: []int{1}, AudioOut: []int{1}, MIDIIn: -1, MIDIOut: -1}

	s.Run(in, out, nil, nil, nil, io)
	if got := out[0]; got[0] != 0 || got[1] != 0 || got[2] != 1 || got[3] != 2 {
		t.Fatalf("expected [0 0 1 2] from a 2-sample delay, got %v", got)
	}

	in2 := [][]float32{{5, 6, 7, 8}}
	out2 := [][]float32{{0, 0, 0, 0}}
	s.Run(in2, out2, nil, nil, nil, io)
	if got := out2[0]; got[0] != 3 || got[1] != 4 || got[2] != 5 || got[3] != 6 {
		t.Fatalf("expected delay state to carry across blocks, got %v", got)
	}
}

func TestSequenceMIDISplicing(t *testing.T) {
	s := NewSequence[float32](1, 2, settings(8))
	s.Ops = []Op[float32]{copyMIDIOp[float32]{src: 0, dst: 1}}

	in := midi.NewBuffer()
	in.Add(midi.Event{Offset: 2, Data: []byte{0x90}})
	out := midi.NewBuffer()

	io := IOBuffers{AudioIn: nil, AudioOut: nil, MIDIIn: 0, MIDIOut: 1}
	s.Run(nil, nil, in, out, nil, io)

	if out.Len() != 1 || out.Events()[0].Offset != 2 {
		t.Fatalf("expected spliced midi event, got %+v", out.Events())
	}
}

func TestPerformSplitsOversizedBlocks(t *testing.T) {
	s := NewSequence[float32](2, 0, settings(2))
	s.Ops = []Op[float32]{copyOp[float32]{src: 1, dst: 1}}

	in := [][]float32{{1, 2, 3, 4, 5, 6}}
	out := [][]float32{{0, 0, 0, 0, 0, 0}}
	io := IOBuffers{AudioIn: []int{1}, AudioOut: []int{1}, MIDIIn: -1, MIDIOut: -1}

	s.Perform(in, out, nil, nil, nil, io)

	want := []float32{1, 2, 3, 4, 5, 6}
	for i, v := range out[0] {
		if v != want[i] {
			t.Fatalf("expected passthrough across chunk boundaries, got %v", out[0])
		}
	}
}

func TestPerformSplicesMIDIAcrossChunksWithOffset(t *testing.T) {
	s := NewSequence[float32](1, 2, settings(2))
	s.Ops = []Op[float32]{copyMIDIOp[float32]{src: 0, dst: 1}}

	in := midi.NewBuffer()
	in.Add(midi.Event{Offset: 0, Data: []byte{1}})
	in.Add(midi.Event{Offset: 3, Data: []byte{2}})
	out := midi.NewBuffer()

	audioIn := [][]float32{{0, 0, 0, 0}}
	audioOut := [][]float32{{0, 0, 0, 0}}
	io := IOBuffers{MIDIIn: 0, MIDIOut: 1}

	s.Perform(audioIn, audioOut, in, out, nil, io)

	if out.Len() != 2 {
		t.Fatalf("expected both events to survive chunking, got %+v", out.Events())
	}
	events := out.Events()
	if events[0].Offset != 0 || events[1].Offset != 3 {
		t.Fatalf("expected original offsets restored, got %+v", events)
	}
}
