package record

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proteus-gripper/proteus/pkg/homing"
	"github.com/proteus-gripper/proteus/pkg/monitor"
	"github.com/proteus-gripper/proteus/pkg/robot"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

var base = time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

func readAll(t *testing.T, r *Reader) []Entry {
	t.Helper()
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, WithSessionID("bench-1"))

	rec.Sample(monitor.Snapshot{
		Seq:      4,
		Leader:   robot.Telemetry{Position: 1.5},
		Follower: robot.Telemetry{Position: 5.5, Torque: -0.04},
		At:       base,
	})
	rec.Step(teleop.Step{Raw: 1.6, Filtered: 1.505, Target: 5.495, At: base.Add(time.Millisecond)})
	rec.Homing(homing.Result{
		Role:     robot.Follower,
		State:    homing.Failed,
		Err:      &homing.Failure{Role: robot.Follower, Reason: homing.ErrTimeout},
		Polls:    12,
		Finished: base.Add(time.Second),
	})
	rec.Event(teleop.Event{Kind: teleop.HomingChanged, Role: robot.Leader, Homing: homing.Seeking, At: base})
	require.NoError(t, rec.Close())

	entries := readAll(t, NewReader(&buf, Filter{}))
	require.Len(t, entries, 4)

	for _, e := range entries {
		require.Equal(t, "bench-1", e.SessionID)
	}

	require.Equal(t, KindSample, entries[0].Kind)
	require.True(t, base.Equal(entries[0].Timestamp), "nanoseconds survive encoding")
	require.Equal(t, uint64(4), entries[0].Sample.Seq)
	require.Equal(t, -0.04, entries[0].Sample.Follower.Torque)

	require.Equal(t, 5.495, entries[1].Step.Target)

	require.Equal(t, "follower", entries[2].Homing.Role)
	require.Equal(t, "failed", entries[2].Homing.State)
	require.Contains(t, entries[2].Homing.Error, "timeout")

	require.Equal(t, "seeking", entries[3].Event.Homing)
	require.Nil(t, entries[3].Sample)
}

func TestRecorderKeepsEveryNth(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, WithEvery(10))
	for i := range 25 {
		rec.Step(teleop.Step{Raw: float64(i), At: base})
	}
	rec.Homing(homing.Result{State: homing.Succeeded, Finished: base})
	require.NoError(t, rec.Flush())

	entries := readAll(t, NewReader(&buf, Filter{}))
	require.Len(t, entries, 4)
	require.Equal(t, 0.0, entries[0].Step.Raw)
	require.Equal(t, 10.0, entries[1].Step.Raw)
	require.Equal(t, 20.0, entries[2].Step.Raw)
	require.Equal(t, KindHoming, entries[3].Kind)
}

func TestFileAppendAndFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cbor")

	for _, id := range []string{"first", "second"} {
		rec, err := Create(path, WithSessionID(id))
		require.NoError(t, err)
		rec.Sample(monitor.Snapshot{Seq: 1, At: base})
		rec.Event(teleop.Event{Kind: teleop.MirrorStarted, At: base.Add(time.Second)})
		require.NoError(t, rec.Close())
		require.NoError(t, rec.Close())
		rec.Sample(monitor.Snapshot{Seq: 2, At: base})
	}

	r, err := Open(path, Filter{SessionID: "second", Kinds: []Kind{KindEvent}})
	require.NoError(t, err)
	defer r.Close()

	entries := readAll(t, r)
	require.Len(t, entries, 1)
	require.Equal(t, "mirror started", entries[0].Event.Kind)

	all, err := Open(path, Filter{})
	require.NoError(t, err)
	defer all.Close()
	sum, err := Summarize(all)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, sum.Sessions)
	require.Equal(t, 2, sum.Counts[KindSample])
	require.Equal(t, time.Second, sum.Duration())
}

func TestRandomSessionID(t *testing.T) {
	a := NewRecorder(io.Discard)
	b := NewRecorder(io.Discard)
	require.Len(t, a.SessionID(), 36)
	require.NotEqual(t, a.SessionID(), b.SessionID())
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

// gate blocks every write until it is opened.
type gate struct {
	entered chan struct{}
	open    chan struct{}
	bytes.Buffer
}

func (g *gate) Write(p []byte) (int, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.open
	return g.Buffer.Write(p)
}

func TestRecorderDropsWhenWriterStalls(t *testing.T) {
	g := &gate{entered: make(chan struct{}, 1), open: make(chan struct{})}
	rec := NewRecorder(g, WithBuffer(1))

	rec.Step(teleop.Step{Raw: 0, At: base})
	<-g.entered // writer is stuck flushing the first entry

	start := time.Now()
	for i := 1; i <= 10; i++ {
		rec.Step(teleop.Step{Raw: float64(i), At: base})
	}
	require.Less(t, time.Since(start), 100*time.Millisecond, "callers never wait for the writer")
	require.Equal(t, uint64(9), rec.Dropped())

	close(g.open)
	require.NoError(t, rec.Close())

	entries := readAll(t, NewReader(&g.Buffer, Filter{}))
	require.Len(t, entries, 2)
	require.Equal(t, 0.0, entries[0].Step.Raw)
	require.Equal(t, 1.0, entries[1].Step.Raw)
}
