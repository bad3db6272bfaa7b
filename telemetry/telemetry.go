// Package telemetry records per-frame statistics of the simulation.
package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	field "github.com/esimov/pixel-particles/particle-field"
)

// FrameRecord is one CSV row.
type FrameRecord struct {
	Frame      int64   `csv:"frame"`
	Particles  int     `csv:"particles"`
	Candidates int     `csv:"candidates"`
	Repelled   int     `csv:"repelled"`
	Relaxed    int     `csv:"relaxed"`
	DurationUS float64 `csv:"duration_us"`
}

// Recorder buffers frame records, flushes them as CSV and keeps the frame
// durations for the summary.
type Recorder struct {
	w             io.Writer
	closer        io.Closer
	pending       []FrameRecord
	flushEvery    int
	headerWritten bool

	durations []float64 // microseconds
	err       error     // first failed flush from Observe
}

// NewRecorder writes CSV rows to w every flushEvery frames. A nil w only
// collects the summary.
func NewRecorder(w io.Writer, flushEvery int) *Recorder {
	if flushEvery < 1 {
		flushEvery = 60
	}
	return &Recorder{w: w, flushEvery: flushEvery}
}

// Create opens path and returns a recorder writing to it.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry file: %w", err)
	}
	r := NewRecorder(f, 60)
	r.closer = f
	return r, nil
}

// Observe records a frame. It matches the signature expected by field.WithObserver.
func (r *Recorder) Observe(s field.FrameStats) {
	us := float64(s.Duration) / float64(time.Microsecond)
	r.durations = append(r.durations, us)
	if r.w == nil {
		return
	}
	r.pending = append(r.pending, FrameRecord{
		Frame:      s.Frame,
		Particles:  s.Particles,
		Candidates: s.Candidates,
		Repelled:   s.Repelled,
		Relaxed:    s.Relaxed,
		DurationUS: us,
	})
	if len(r.pending) >= r.flushEvery {
		// The first write error is reported by Close.
		if err := r.Flush(); err != nil && r.err == nil {
			r.err = err
		}
	}
}

// Flush writes the buffered records.
func (r *Recorder) Flush() error {
	if r.w == nil || len(r.pending) == 0 {
		return nil
	}
	var err error
	if !r.headerWritten {
		err = gocsv.Marshal(r.pending, r.w)
		r.headerWritten = true
	} else {
		err = gocsv.MarshalWithoutHeaders(r.pending, r.w)
	}
	r.pending = r.pending[:0]
	if err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file, if the recorder owns one. It
// also reports the first write error hit while observing frames.
func (r *Recorder) Close() error {
	err := errors.Join(r.err, r.Flush())
	if r.closer != nil {
		err = errors.Join(err, r.closer.Close())
	}
	return err
}

// Summary describes the frame time distribution, in microseconds.
type Summary struct {
	Frames int
	Mean   float64
	StdDev float64
	P50    float64
	P99    float64
	Max    float64
}

// Summary computes the frame time statistics collected so far.
func (r *Recorder) Summary() Summary {
	s := Summary{Frames: len(r.durations)}
	if s.Frames == 0 {
		return s
	}
	sorted := slices.Clone(r.durations)
	slices.Sort(sorted)

	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	s.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	s.Max = sorted[len(sorted)-1]
	return s
}
