package record

import (
	"errors"
	"io"
	"math"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects entries. Zero fields match everything.
type Filter struct {
	SessionID string
	Kinds     []Kind
	Since     time.Time
}

func (f *Filter) matches(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Reader streams entries from a recording.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads entries matching filter from r.
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{decoder: newDecoder(r), filter: filter}
}

// Open reads entries matching filter from the file at path.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f, filter)
	r.closer = f
	return r, nil
}

// Next returns the next matching entry, or io.EOF at the end.
func (r *Reader) Next() (Entry, error) {
	for {
		var e Entry
		if err := r.decoder.Decode(&e); err != nil {
			return Entry{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Summary describes a recording.
type Summary struct {
	Sessions       []string
	Counts         map[Kind]int
	First, Last    time.Time
	PeakTorque     float64 // largest follower |torque| seen in samples
	HomingFailures int
}

// Duration is the time between the first and last entry.
func (s Summary) Duration() time.Duration {
	return s.Last.Sub(s.First)
}

// Summarize reads r to the end.
func Summarize(r *Reader) (Summary, error) {
	s := Summary{Counts: make(map[Kind]int)}
	seen := make(map[string]bool)

	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}

		if !seen[e.SessionID] {
			seen[e.SessionID] = true
			s.Sessions = append(s.Sessions, e.SessionID)
		}
		s.Counts[e.Kind]++
		if s.First.IsZero() || e.Timestamp.Before(s.First) {
			s.First = e.Timestamp
		}
		if e.Timestamp.After(s.Last) {
			s.Last = e.Timestamp
		}

		switch {
		case e.Sample != nil:
			s.PeakTorque = math.Max(s.PeakTorque, math.Abs(e.Sample.Follower.Torque))
		case e.Homing != nil && e.Homing.Error != "":
			s.HomingFailures++
		}
	}
}
