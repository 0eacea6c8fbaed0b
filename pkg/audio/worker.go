package audio

import (
	"log/slog"
	"time"
)

// dequeueTimeout bounds how long Run blocks between stop-flag checks.
const dequeueTimeout = 100 * time.Millisecond

// inputQueueCapacity sizes the buffered channel backing a Worker's input.
// Large enough that a healthy pipeline never fills it; see DESIGN.md for
// the bounded-vs-unbounded tradeoff.
const inputQueueCapacity = 256

// Worker runs one direction of the transcoding pipeline: dequeue a frame,
// optionally Opus-decode it, remix channels, Opus-encode, and hand the
// result to Sink. Each Worker owns its own decoder/encoder state and must
// not be shared across goroutines other than its own Run loop.
type Worker struct {
	decodeInput    bool
	sourceChannels int
	sinkChannels   int

	decoder *Decoder
	encoder *Encoder

	input chan []byte
	stop  chan struct{}
	done  chan struct{}

	// Sink receives each successfully produced frame, called from the
	// worker's own goroutine.
	Sink func(frame []byte)
}

// NewWorker constructs a Worker for one pipeline direction. decodeInput
// selects whether inbound items are Opus packets (decoded before remix) or
// raw PCM (remixed directly).
func NewWorker(sourceChannels, sinkChannels int, decodeInput bool) (*Worker, error) {
	w := &Worker{
		decodeInput:    decodeInput,
		sourceChannels: sourceChannels,
		sinkChannels:   sinkChannels,
		input:          make(chan []byte, inputQueueCapacity),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	if decodeInput {
		dec, err := NewDecoder(sourceChannels)
		if err != nil {
			return nil, err
		}
		w.decoder = dec
	}

	enc, err := NewEncoder(sinkChannels)
	if err != nil {
		return nil, err
	}
	w.encoder = enc

	return w, nil
}

// Enqueue submits an inbound item (Opus bytes if decodeInput, else raw PCM
// bytes). Enqueue returns at once while the queue has room; once it is
// full, the channel send blocks the caller until Run takes an item, which
// is the bounded queue's backpressure. No item is dropped.
func (w *Worker) Enqueue(item []byte) {
	w.input <- item
}

// Run processes items until Stop is called. Callers run it in its own
// goroutine.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case item := <-w.input:
			w.process(item)
		case <-time.After(dequeueTimeout):
			select {
			case <-w.stop:
				return
			default:
			}
		}
	}
}

func (w *Worker) process(item []byte) {
	pcm := item

	if w.decodeInput {
		decoded, err := w.decoder.Decode(item)
		if err != nil {
			slog.Debug("audio: dropping frame, decode failed", "err", err)
			return
		}
		pcm = decoded
	}

	if w.sourceChannels != w.sinkChannels {
		pcm = remix(pcm, w.sourceChannels, w.sinkChannels)
	}

	encoded, err := w.encoder.Encode(pcm)
	if err != nil {
		slog.Debug("audio: dropping frame, encode failed", "err", err)
		return
	}

	if w.Sink != nil {
		w.Sink(encoded)
	}
}

// Stop signals Run to return after its current dequeue cycle (at most
// dequeueTimeout later) and waits for it to do so.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// remix converts an interleaved PCM frame from sourceChannels to
// sinkChannels by replicating the first source channel's sample into every
// sink channel: upmix duplicates, downmix simply takes the first channel.
func remix(data []byte, sourceChannels, sinkChannels int) []byte {
	sampleSize := bytesPerSample
	sourceStride := sampleSize * sourceChannels
	sinkStride := sampleSize * sinkChannels

	frames := len(data) / sourceStride
	out := make([]byte, frames*sinkStride)

	for i := 0; i < frames; i++ {
		sample := data[i*sourceStride : i*sourceStride+sampleSize]
		for c := 0; c < sinkChannels; c++ {
			copy(out[i*sinkStride+c*sampleSize:], sample)
		}
	}

	return out
}
