package prepare

import (
	"testing"

	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/processor"
)

type fakeProcessor struct {
	supportsDouble bool
	useDouble      bool
	prepared       int
	released       int
	lastRate       float64
	lastBlock      int
}

func (f *fakeProcessor) NumInputChannels() int             { return 2 }
func (f *fakeProcessor) NumOutputChannels() int            { return 2 }
func (f *fakeProcessor) AcceptsMIDI() bool                 { return false }
func (f *fakeProcessor) ProducesMIDI() bool                { return false }
func (f *fakeProcessor) SupportsDoublePrecision() bool     { return f.supportsDouble }
func (f *fakeProcessor) IsUsingDoublePrecision() bool       { return f.useDouble }
func (f *fakeProcessor) SetProcessingPrecision(d bool)      { f.useDouble = d }
func (f *fakeProcessor) LatencySamples() int                { return 0 }
func (f *fakeProcessor) SetRateAndBlockSize(r float64, b int) {
	f.lastRate = r
	f.lastBlock = b
}
func (f *fakeProcessor) PrepareToPlay(r float64, b int) error { f.prepared++; return nil }
func (f *fakeProcessor) ReleaseResources()                    { f.released++ }
func (f *fakeProcessor) Reset()                               {}
func (f *fakeProcessor) SetPlayHead(ph processor.PlayHead)    {}
func (f *fakeProcessor) SetNonRealtime(bool)                  {}
func (f *fakeProcessor) CallbackLock() processor.Locker       { return nil }
func (f *fakeProcessor) IsSuspended() bool                    { return false }
func (f *fakeProcessor) BypassParameter() processor.BypassParameter { return nil }
func (f *fakeProcessor) ProcessBlockF(a [][]float32, m *midi.Buffer)        {}
func (f *fakeProcessor) ProcessBlockD(a [][]float64, m *midi.Buffer)        {}
func (f *fakeProcessor) ProcessBlockBypassedF(a [][]float32, m *midi.Buffer) {}
func (f *fakeProcessor) ProcessBlockBypassedD(a [][]float64, m *midi.Buffer) {}

func TestApplyPreparesOnlyOncePerSettings(t *testing.T) {
	tr := NewTracker()
	p := &fakeProcessor{supportsDouble: false}
	nodes := []NodeRef{{ID: 1, Processor: p}}

	tr.SetState(&Settings{Precision: Single, SampleRate: 44100, BlockSize: 512})
	applied, err := tr.Apply(nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied == nil || applied.SampleRate != 44100 {
		t.Fatalf("expected settings applied, got %+v", applied)
	}
	if p.prepared != 1 {
		t.Errorf("expected 1 prepare call, got %d", p.prepared)
	}

	// Calling Apply again with the same settings and node set must not
	// re-prepare.
	if _, err := tr.Apply(nodes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.prepared != 1 {
		t.Errorf("expected prepare to not be called again, got %d calls", p.prepared)
	}
}

func TestApplyReleasesOnSettingsChange(t *testing.T) {
	tr := NewTracker()
	p := &fakeProcessor{}
	nodes := []NodeRef{{ID: 1, Processor: p}}

	tr.SetState(&Settings{SampleRate: 44100, BlockSize: 512})
	tr.Apply(nodes)

	tr.SetState(&Settings{SampleRate: 48000, BlockSize: 256})
	if _, err := tr.Apply(nodes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One release for the first Apply (no settings -> 44.1k is a change) and
	// one for the 44.1k -> 48k change.
	if p.released != 2 {
		t.Errorf("expected release on settings change, got %d", p.released)
	}
	if p.prepared != 2 {
		t.Errorf("expected re-prepare after settings change, got %d", p.prepared)
	}
	if p.lastRate != 48000 || p.lastBlock != 256 {
		t.Errorf("expected new rate/block propagated, got %v/%v", p.lastRate, p.lastBlock)
	}
}

func TestApplyWithNilSettingsReleasesAndReturnsNil(t *testing.T) {
	tr := NewTracker()
	p := &fakeProcessor{}
	nodes := []NodeRef{{ID: 1, Processor: p}}

	tr.SetState(&Settings{SampleRate: 44100, BlockSize: 512})
	tr.Apply(nodes)

	tr.SetState(nil)
	applied, err := tr.Apply(nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != nil {
		t.Errorf("expected nil settings after release, got %+v", applied)
	}
	// One release for the first Apply (no settings -> 44.1k is a change) and
	// one for the 44.1k -> nil change.
	if p.released != 2 {
		t.Errorf("expected release called twice, got %d", p.released)
	}
}

func TestApplyChoosesDoublePrecisionWhenSupported(t *testing.T) {
	tr := NewTracker()
	p := &fakeProcessor{supportsDouble: true}
	nodes := []NodeRef{{ID: 1, Processor: p}}

	tr.SetState(&Settings{Precision: Double, SampleRate: 44100, BlockSize: 512})
	tr.Apply(nodes)
	if !p.useDouble {
		t.Errorf("expected double precision to be selected")
	}
}

func TestApplyFallsBackToSingleWhenUnsupported(t *testing.T) {
	tr := NewTracker()
	p := &fakeProcessor{supportsDouble: false}
	nodes := []NodeRef{{ID: 1, Processor: p}}

	tr.SetState(&Settings{Precision: Double, SampleRate: 44100, BlockSize: 512})
	tr.Apply(nodes)
	if p.useDouble {
		t.Errorf("expected single precision fallback when processor can't do double")
	}
}
