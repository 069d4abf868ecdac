package main

import (
	"fmt"

	"github.com/riftaudio/graphengine/graph/prepare"
	"github.com/riftaudio/graphengine/nodes/wavio"
)

// runBounce drives bg's coordinator in non-realtime mode until every
// wav_in reader has exhausted its file, one block at a time. Neither
// audioIn nor audioOut is wired to anything in this topology — the bounce
// reads and writes entirely through wavio nodes — so the only buffer the
// loop supplies is a one-channel stand-in whose sole job is telling
// Sequence.Run how many samples to process per block (see render.Sequence.Run).
func runBounce(bg *builtGraph, t *topology) (blocks int, err error) {
	bg.coord.PrepareToPlay(t.SampleRate, t.BlockSize, prepare.Single)
	bg.coord.SetNonRealtime(true)
	defer bg.coord.ReleaseResources()

	if len(bg.readers) == 0 {
		return 0, fmt.Errorf("topology has no wav_in node to drive the bounce's length")
	}

	tick := [][]float32{make([]float32, t.BlockSize)}
	for !allDone(bg.readers) {
		bg.coord.ProcessBlockF(nil, tick, nil, nil, nil)
		blocks++
	}
	return blocks, nil
}

func allDone(readers []*wavio.Reader) bool {
	for _, r := range readers {
		if !r.Done() {
			return false
		}
	}
	return true
}
