package telemetry

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	field "github.com/esimov/pixel-particles/particle-field"
)

func frame(n int64, d time.Duration) field.FrameStats {
	return field.FrameStats{
		Frame:     n,
		Particles: 16,
		StepStats: field.StepStats{Candidates: 4, Repelled: 2, Relaxed: 3},
		Duration:  d,
	}
}

func TestRecorderCSV(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf, 2)

	r.Observe(frame(1, 10*time.Microsecond))
	assert.Zero(t, buf.Len(), "flushes only after flushEvery frames")
	r.Observe(frame(2, 20*time.Microsecond))
	r.Observe(frame(3, 30*time.Microsecond))
	require.NoError(t, r.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "frame,particles,candidates,repelled,relaxed,duration_us", lines[0])

	var records []FrameRecord
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &records))
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[2].Frame)
	assert.Equal(t, 2, records[0].Repelled)
	assert.InDelta(t, 30.0, records[2].DurationUS, 1e-9)
}

func TestRecorderSummary(t *testing.T) {
	r := NewRecorder(nil, 0)
	assert.Equal(t, Summary{}, r.Summary())

	for i := 1; i <= 100; i++ {
		r.Observe(frame(int64(i), time.Duration(i)*time.Microsecond))
	}
	s := r.Summary()
	assert.Equal(t, 100, s.Frames)
	assert.InDelta(t, 50.5, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(841.6666666666666), s.StdDev, 1e-6)
	assert.Equal(t, 50.0, s.P50)
	assert.Equal(t, 99.0, s.P99)
	assert.Equal(t, 100.0, s.Max)
	assert.NoError(t, r.Close())
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.csv")
	r, err := Create(path)
	require.NoError(t, err)

	r.Observe(frame(1, time.Millisecond))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,16,4,2,3,1000")
}

var errDiskFull = errors.New("disk full")

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errDiskFull }

func TestRecorderReportsWriteErrorOnClose(t *testing.T) {
	r := NewRecorder(failWriter{}, 1)
	r.Observe(frame(1, 10*time.Microsecond))
	r.Observe(frame(2, 20*time.Microsecond))

	err := r.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 2, r.Summary().Frames, "durations are kept despite the failed writes")
}
