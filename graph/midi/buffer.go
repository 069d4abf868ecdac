// Package midi provides the MIDI buffer plumbing used by the render
// sequence's midi ops. Parsing the contents of a MIDI message is out of
// scope here (the host and the processors own that); a Buffer only needs to
// support the clear/copy/add/offset operations the compiler emits.
package midi

import "sort"

// Event is a single timestamped MIDI message. Data is opaque to the graph —
// it is forwarded to whichever processor reads it.
type Event struct {
	Offset int32 // sample offset within the current block
	Data   []byte
}

// Buffer holds MIDI events for one block, ordered by Offset. It is the
// analog of JUCE's MidiBuffer and backs every midi buffer slot in the
// render sequence's buffer pool.
type Buffer struct {
	events []Event
	sorted bool
}

// NewBuffer returns an empty buffer with room for a typical block's worth
// of events, avoiding reallocation in the common case.
func NewBuffer() *Buffer {
	return &Buffer{events: make([]Event, 0, 32), sorted: true}
}

// Clear empties the buffer without releasing its backing array.
func (b *Buffer) Clear() {
	b.events = b.events[:0]
	b.sorted = true
}

// Add appends an event. The buffer is marked unsorted; ordering is
// restored lazily on read.
func (b *Buffer) Add(e Event) {
	if len(b.events) > 0 && e.Offset < b.events[len(b.events)-1].Offset {
		b.sorted = false
	}
	b.events = append(b.events, e)
}

// AddEvents appends a slice of events, offsetting each by delta — used when
// splicing a sub-range of one buffer into another (see Events below, and
// the chunked-block path in render.Sequence.Perform).
func (b *Buffer) AddEvents(src *Buffer, startSample, numSamples int32, delta int32) {
	if src == nil {
		return
	}
	end := startSample + numSamples
	for _, e := range src.Events() {
		if e.Offset < startSample || e.Offset >= end {
			continue
		}
		b.Add(Event{Offset: e.Offset + delta, Data: e.Data})
	}
}

// Events returns the events in ascending Offset order. The returned slice
// is only valid until the next mutating call.
func (b *Buffer) Events() []Event {
	if !b.sorted {
		sort.SliceStable(b.events, func(i, j int) bool { return b.events[i].Offset < b.events[j].Offset })
		b.sorted = true
	}
	return b.events
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// CopyFrom replaces this buffer's contents with a copy of src's — backs
// the compiler's copy_midi op.
func (b *Buffer) CopyFrom(src *Buffer) {
	b.Clear()
	if src == nil {
		return
	}
	for _, e := range src.Events() {
		b.events = append(b.events, e)
	}
	b.sorted = true
}

// AddFrom merges src's events into this buffer — backs the compiler's
// add_midi op.
func (b *Buffer) AddFrom(src *Buffer) {
	if src == nil {
		return
	}
	for _, e := range src.Events() {
		b.Add(e)
	}
}
