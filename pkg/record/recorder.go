package record

import (
	"bufio"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/proteus-gripper/proteus/pkg/homing"
	"github.com/proteus-gripper/proteus/pkg/monitor"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

// DefaultBuffer is how many entries may wait for the writer before new ones
// are dropped.
const DefaultBuffer = 4096

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithEvery keeps only every nth sample and step. Homing results and events
// are always kept.
func WithEvery(n uint64) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.every = n
		}
	}
}

// WithSessionID sets the session id instead of a random one.
func WithSessionID(id string) RecorderOption {
	return func(r *Recorder) { r.session = id }
}

// WithBuffer sets how many entries may be queued for the writer.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// item is a queued entry or, when flushed is set, a flush request.
type item struct {
	entry   Entry
	flushed chan error
}

// Recorder appends entries to a CBOR stream. Entries are queued and encoded
// by a writer goroutine so callers on the control loops never wait for I/O;
// when the queue is full the entry is dropped. It is safe for concurrent use
// by the monitor, mirror and session goroutines.
type Recorder struct {
	session string
	every   uint64
	buffer  int

	samples atomic.Uint64
	steps   atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex // guards queue against Close
	queue  chan item
	closed bool

	closer  io.Closer
	buf     *bufio.Writer
	encoder *cbor.Encoder
	done    chan struct{}
	err     error // first write error, owned by the writer goroutine until done
}

// NewRecorder writes entries to w.
func NewRecorder(w io.Writer, opts ...RecorderOption) *Recorder {
	buf := bufio.NewWriter(w)
	r := &Recorder{
		session: uuid.NewString(),
		every:   1,
		buffer:  DefaultBuffer,
		buf:     buf,
		encoder: newEncoder(buf),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan item, r.buffer)
	go r.writeLoop()
	return r
}

// Create opens path for appending and records into it.
func Create(path string, opts ...RecorderOption) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(f, opts...)
	r.closer = f
	return r, nil
}

// SessionID returns the id stamped on every entry.
func (r *Recorder) SessionID() string {
	return r.session
}

// Dropped returns how many entries were lost to a full queue or a failed write.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Sample records a monitor snapshot. It has the monitor.Sink signature.
func (r *Recorder) Sample(s monitor.Snapshot) {
	if (r.samples.Add(1)-1)%r.every != 0 {
		return
	}
	r.write(sampleEntry(s))
}

// Step records a mirror iteration.
func (r *Recorder) Step(s teleop.Step) {
	if (r.steps.Add(1)-1)%r.every != 0 {
		return
	}
	r.write(stepEntry(s))
}

// Homing records a finished homing run.
func (r *Recorder) Homing(res homing.Result) {
	r.write(homingEntry(res))
}

// Event records a session transition.
func (r *Recorder) Event(e teleop.Event) {
	r.write(eventEntry(e))
}

func (r *Recorder) write(e Entry) {
	e.SessionID = r.session

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- item{entry: e}:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.done)

	for it := range r.queue {
		if it.flushed != nil {
			it.flushed <- r.flush()
			continue
		}
		if err := r.encoder.Encode(it.entry); err != nil {
			r.dropped.Add(1)
			r.fail(err)
		}
		// Write through whenever the queue drains.
		if len(r.queue) == 0 {
			r.fail(r.buf.Flush())
		}
	}
	r.fail(r.buf.Flush())
}

func (r *Recorder) flush() error {
	if err := r.buf.Flush(); err != nil {
		r.fail(err)
		return err
	}
	return nil
}

func (r *Recorder) fail(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// Flush waits until every queued entry is written through.
func (r *Recorder) Flush() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	flushed := make(chan error, 1)
	r.queue <- item{flushed: flushed}
	return <-flushed
}

// Close writes the queued entries and closes the underlying file. Later
// entries are ignored. It is safe to call Close more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	err := r.err
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
