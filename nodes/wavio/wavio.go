// Package wavio provides a file-backed source/sink Processor pair used by
// the offline-bounce demo: Reader decodes an entire WAV file during
// PrepareToPlay and hands it out block by block; Writer streams blocks to
// a WAV file as they arrive and finalizes the file on ReleaseResources.
// Reader does all of its disk I/O in PrepareToPlay; Writer opens its file in
// PrepareToPlay but writes each block to disk from inside ProcessBlock*,
// so it blocks the thread that renders the graph and suits offline
// (non-realtime) bounces. Both declare their channel counts at construction, the way any
// other node does, rather than leaving port counts to be discovered only
// once a file is opened.
package wavio

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	wav "github.com/go-audio/wav"

	"github.com/riftaudio/graphengine/graph/midi"
	"github.com/riftaudio/graphengine/graph/processor"
)

const fullScale = 0x7FFF

// Reader is a pump node: NumInputChannels is always 0, NumOutputChannels
// is the channel count declared at construction — fixed up front, like
// any other node's port count, rather than left to vary with whatever the
// file on disk happens to contain once PrepareToPlay decodes it. A file
// with fewer channels than declared pads the missing ones with silence; a
// file with more drops the extras.
type Reader struct {
	mu   sync.Mutex
	path string

	numChannels int
	samples     [][]float64
	readPos     int
}

// NewReader returns a Reader exposing numChannels of output audio, whose
// samples come from decoding path during PrepareToPlay.
func NewReader(path string, numChannels int) *Reader {
	return &Reader{path: path, numChannels: numChannels}
}

// Done reports whether the last decoded sample has already been handed
// out; the demo CLI uses this to know when to stop driving the graph.
func (r *Reader) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples) == 0 || r.readPos >= len(r.samples[0])
}

func (r *Reader) NumInputChannels() int  { return 0 }
func (r *Reader) NumOutputChannels() int { return r.numChannels }
func (r *Reader) AcceptsMIDI() bool      { return false }
func (r *Reader) ProducesMIDI() bool     { return false }

func (r *Reader) SupportsDoublePrecision() bool    { return true }
func (r *Reader) IsUsingDoublePrecision() bool      { return false }
func (r *Reader) SetProcessingPrecision(bool)       {}
func (r *Reader) LatencySamples() int               { return 0 }
func (r *Reader) SetRateAndBlockSize(float64, int)  {}

func (r *Reader) PrepareToPlay(sampleRate float64, blockSize int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("wavio: open %s: %w", r.path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("wavio: decode %s: %w", r.path, err)
	}

	fileChannels := buf.Format.NumChannels
	if fileChannels < 1 {
		fileChannels = 1
	}
	frames := len(buf.Data) / fileChannels

	samples := make([][]float64, r.numChannels)
	for ch := range samples {
		samples[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < r.numChannels; ch++ {
			if ch >= fileChannels {
				continue // declared more channels than the file has: leave silent
			}
			samples[ch][i] = float64(buf.Data[i*fileChannels+ch]) / fullScale
		}
	}

	r.samples = samples
	r.readPos = 0
	return nil
}

func (r *Reader) ReleaseResources() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
	r.readPos = 0
}

func (r *Reader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readPos = 0
}

func (r *Reader) SetPlayHead(processor.PlayHead) {}
func (r *Reader) SetNonRealtime(bool)            {}
func (r *Reader) CallbackLock() processor.Locker { return &r.mu }
func (r *Reader) IsSuspended() bool              { return false }
func (r *Reader) BypassParameter() processor.BypassParameter { return nil }

func (r *Reader) ProcessBlockF(audio [][]float32, m *midi.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	if len(audio) > 0 {
		n = len(audio[0])
	}
	for ch := 0; ch < len(audio) && ch < r.numChannels; ch++ {
		for i := 0; i < n; i++ {
			if r.readPos+i < len(r.samples[ch]) {
				audio[ch][i] = float32(r.samples[ch][r.readPos+i])
			} else {
				audio[ch][i] = 0
			}
		}
	}
	r.readPos += n
}

func (r *Reader) ProcessBlockD(audio [][]float64, m *midi.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	if len(audio) > 0 {
		n = len(audio[0])
	}
	for ch := 0; ch < len(audio) && ch < r.numChannels; ch++ {
		for i := 0; i < n; i++ {
			if r.readPos+i < len(r.samples[ch]) {
				audio[ch][i] = r.samples[ch][r.readPos+i]
			} else {
				audio[ch][i] = 0
			}
		}
	}
	r.readPos += n
}

func (r *Reader) ProcessBlockBypassedF(audio [][]float32, m *midi.Buffer) {}
func (r *Reader) ProcessBlockBypassedD(audio [][]float64, m *midi.Buffer) {}

// Writer is a true sink node: NumOutputChannels is always 0, so
// graph/compile folds this node's latency into the running
// total_latency-over-sinks computation alongside the graph's audio_out
// endpoint rather than being fed forward to anything.
type Writer struct {
	mu sync.Mutex

	path        string
	sampleRate  int
	bitDepth    int
	numChannels int

	file *os.File
	enc  *wav.Encoder
}

// NewWriter returns a Writer that streams numChannels of audio to path at
// the given sample rate and bit depth, opened during PrepareToPlay.
func NewWriter(path string, numChannels, sampleRate, bitDepth int) *Writer {
	return &Writer{path: path, numChannels: numChannels, sampleRate: sampleRate, bitDepth: bitDepth}
}

func (w *Writer) NumInputChannels() int  { return w.numChannels }
func (w *Writer) NumOutputChannels() int { return 0 }
func (w *Writer) AcceptsMIDI() bool      { return false }
func (w *Writer) ProducesMIDI() bool     { return false }

func (w *Writer) SupportsDoublePrecision() bool    { return true }
func (w *Writer) IsUsingDoublePrecision() bool      { return false }
func (w *Writer) SetProcessingPrecision(bool)       {}
func (w *Writer) LatencySamples() int               { return 0 }
func (w *Writer) SetRateAndBlockSize(float64, int)  {}

func (w *Writer) PrepareToPlay(sampleRate float64, blockSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("wavio: create %s: %w", w.path, err)
	}
	w.file = file
	w.enc = wav.NewEncoder(file, w.sampleRate, w.bitDepth, w.numChannels, 1)
	return nil
}

func (w *Writer) ReleaseResources() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil {
		w.enc.Close()
		w.enc = nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

func (w *Writer) Reset() {}

func (w *Writer) SetPlayHead(processor.PlayHead) {}
func (w *Writer) SetNonRealtime(bool)            {}
func (w *Writer) CallbackLock() processor.Locker { return &w.mu }
func (w *Writer) IsSuspended() bool              { return false }
func (w *Writer) BypassParameter() processor.BypassParameter { return nil }

func (w *Writer) ProcessBlockF(audio [][]float32, m *midi.Buffer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil || len(audio) == 0 {
		return
	}
	n := len(audio[0])
	data := make([]int, n*w.numChannels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < w.numChannels && ch < len(audio); ch++ {
			data[i*w.numChannels+ch] = int(audio[ch][i] * fullScale)
		}
	}
	w.write(data)
}

func (w *Writer) ProcessBlockD(audio [][]float64, m *midi.Buffer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil || len(audio) == 0 {
		return
	}
	n := len(audio[0])
	data := make([]int, n*w.numChannels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < w.numChannels && ch < len(audio); ch++ {
			data[i*w.numChannels+ch] = int(audio[ch][i] * fullScale)
		}
	}
	w.write(data)
}

func (w *Writer) write(data []int) {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: w.numChannels, SampleRate: w.sampleRate},
		Data:           data,
		SourceBitDepth: w.bitDepth,
	}
	w.enc.Write(buf)
}

func (w *Writer) ProcessBlockBypassedF(audio [][]float32, m *midi.Buffer) {}
func (w *Writer) ProcessBlockBypassedD(audio [][]float64, m *midi.Buffer) {}

var (
	_ processor.Processor = (*Reader)(nil)
	_ processor.Processor = (*Writer)(nil)
)
