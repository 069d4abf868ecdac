// Package analyzer provides a passthrough spectrum-analyzer Processor: an
// example external node with a real, nonzero reported latency, giving the
// compiler's latency compensation a genuine DSP component to compensate
// for (graph/compile's own tests, including the diamond-latency test, use
// stub processors instead).
package analyzer

import (
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/processor"
)

const minDB = -130.0

// Analyzer measures channel 0's magnitude spectrum over a Hann-windowed
// FFT, refreshed once per hop (half the FFT size, 50% overlap). Every
// channel is passed through delayed by half the FFT window: that delay is
// the processor's entire reported latency, so a host that places an
// Analyzer alongside a look-ahead limiter sees both on the same time base
// instead of the analyzer reading "into the future" relative to the
// limited signal.
type Analyzer struct {
	mu sync.Mutex

	numChannels int
	fftSize     int
	hopSize     int

	window     []float64
	windowGain float64

	plan   *algofft.Plan[complex128]
	fftIn  []complex128
	fftOut []complex128
	re, im []float64

	analysisRing     []float64
	writePos, filled int
	samplesToHop     int

	delay    [][]float64
	delayPos int

	db    []float64
	ready bool
}

// New returns an Analyzer for numChannels of audio, computing an fftSize
// point spectrum. fftSize must be a power of two the plan accepts.
func New(numChannels, fftSize int) *Analyzer {
	a := &Analyzer{numChannels: numChannels, fftSize: fftSize, hopSize: fftSize / 2}
	a.window = hann(fftSize)
	sum := 0.0
	for _, w := range a.window {
		sum += w
	}
	a.windowGain = sum / float64(fftSize)

	plan, err := algofft.NewPlan64(fftSize)
	if err == nil {
		a.plan = plan
	}

	a.fftIn = make([]complex128, fftSize)
	a.fftOut = make([]complex128, fftSize)
	a.re = make([]float64, fftSize)
	a.im = make([]float64, fftSize)
	a.analysisRing = make([]float64, fftSize)

	a.db = make([]float64, fftSize/2+1)
	for i := range a.db {
		a.db[i] = minDB
	}

	a.delay = make([][]float64, numChannels)
	for ch := range a.delay {
		a.delay[ch] = make([]float64, a.hopSize)
	}

	return a
}

// SpectrumDB returns the most recently computed magnitude spectrum in
// dBFS, one value per bin from DC to Nyquist. The returned slice must not
// be retained across calls; copy it if the caller needs to keep it.
func (a *Analyzer) SpectrumDB() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db
}

func (a *Analyzer) NumInputChannels() int  { return a.numChannels }
func (a *Analyzer) NumOutputChannels() int { return a.numChannels }
func (a *Analyzer) AcceptsMIDI() bool      { return false }
func (a *Analyzer) ProducesMIDI() bool     { return false }

func (a *Analyzer) SupportsDoublePrecision() bool    { return true }
func (a *Analyzer) IsUsingDoublePrecision() bool      { return false }
func (a *Analyzer) SetProcessingPrecision(double bool) {}
func (a *Analyzer) LatencySamples() int               { return a.hopSize }
func (a *Analyzer) SetRateAndBlockSize(float64, int)  {}

func (a *Analyzer) PrepareToPlay(sampleRate float64, blockSize int) error { return nil }
func (a *Analyzer) ReleaseResources()                                    {}

func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writePos, a.filled, a.samplesToHop = 0, 0, 0
	a.delayPos = 0
	a.ready = false
	for ch := range a.delay {
		for i := range a.delay[ch] {
			a.delay[ch][i] = 0
		}
	}
	for i := range a.db {
		a.db[i] = minDB
	}
}

func (a *Analyzer) SetPlayHead(processor.PlayHead) {}
func (a *Analyzer) SetNonRealtime(bool)            {}
func (a *Analyzer) CallbackLock() processor.Locker { return &a.mu }
func (a *Analyzer) IsSuspended() bool              { return false }

func (a *Analyzer) BypassParameter() processor.BypassParameter { return nil }

func (a *Analyzer) ProcessBlockF(audio [][]float32, m *midi.Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	if len(audio) > 0 {
		n = len(audio[0])
	}
	for i := 0; i < n; i++ {
		a.pushSample(float64(audio[0][i]))
		for ch := 0; ch < a.numChannels; ch++ {
			audio[ch][i] = float32(a.delayChannel(ch, float64(audio[ch][i])))
		}
	}
}

func (a *Analyzer) ProcessBlockD(audio [][]float64, m *midi.Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	if len(audio) > 0 {
		n = len(audio[0])
	}
	for i := 0; i < n; i++ {
		a.pushSample(audio[0][i])
		for ch := 0; ch < a.numChannels; ch++ {
			audio[ch][i] = a.delayChannel(ch, audio[ch][i])
		}
	}
}

func (a *Analyzer) ProcessBlockBypassedF(audio [][]float32, m *midi.Buffer) {}
func (a *Analyzer) ProcessBlockBypassedD(audio [][]float64, m *midi.Buffer) {}

// delayChannel runs channel ch's sample through its own ring-buffer delay
// line, hopSize samples long, and returns the delayed output.
func (a *Analyzer) delayChannel(ch int, in float64) float64 {
	ring := a.delay[ch]
	out := ring[a.delayPos]
	ring[a.delayPos] = in
	return out
}

func (a *Analyzer) pushSample(x float64) {
	a.analysisRing[a.writePos] = x
	a.writePos++
	if a.writePos >= a.fftSize {
		a.writePos = 0
	}
	if a.filled < a.fftSize {
		a.filled++
	}

	a.delayPos++
	if a.delayPos >= a.hopSize {
		a.delayPos = 0
	}

	a.samplesToHop++
	if a.filled >= a.fftSize && a.samplesToHop >= a.hopSize {
		a.samplesToHop = 0
		a.updateSpectrum()
	}
}

func (a *Analyzer) updateSpectrum() {
	if a.plan == nil {
		return
	}

	read := a.writePos
	for i := 0; i < a.fftSize; i++ {
		a.fftIn[i] = complex(a.analysisRing[read]*a.window[i], 0)
		read++
		if read >= a.fftSize {
			read = 0
		}
	}

	if err := a.plan.Forward(a.fftOut, a.fftIn); err != nil {
		return
	}

	for i, c := range a.fftOut {
		a.re[i] = real(c)
		a.im[i] = imag(c)
	}
	mags := make([]float64, a.fftSize)
	vecmath.Magnitude(mags, a.re, a.im)

	norm := float64(a.fftSize) * math.Max(a.windowGain, 1e-12)
	last := len(a.db) - 1
	for k := 0; k <= last; k++ {
		mag := mags[k] / norm
		if k > 0 && k < last {
			mag *= 2
		}
		v := 20 * math.Log10(math.Max(1e-12, mag))
		if v < minDB {
			v = minDB
		}
		a.db[k] = v
	}
	a.ready = true
}

// hann returns a periodic Hann window of the given length.
func hann(n int) []float64 {
	w := make([]float64, n)
	if n <= 1 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

var _ processor.Processor = (*Analyzer)(nil)
