// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records AMF link traffic as a sequence of CBOR records and
// reads it back for offline inspection.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

// Record is one recorded link event.
type Record struct {
	// UnixNano is the event time in nanoseconds since the Unix epoch.
	UnixNano int64         `cbor:"1,keyasint"`
	Port     string        `cbor:"2,keyasint"`
	Kind     amf.TraceKind `cbor:"3,keyasint"`
	Frame    []byte        `cbor:"4,keyasint,omitempty"`
}

// Time returns the event time.
func (r *Record) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// Recorder writes every traced event to w. It is safe for use by several
// transports at once.
type Recorder struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	count  int
	err    error
}

var _ amf.Tracer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w)}
}

// Create creates (or truncates) the named file and records into it.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	r := NewRecorder(f)
	r.closer = f
	return r, nil
}

// Trace implements amf.Tracer. The first write error is kept and later
// events are dropped; see Err.
func (r *Recorder) Trace(ev amf.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}

	rec := Record{
		UnixNano: ev.Time.UnixNano(),
		Port:     ev.Port,
		Kind:     ev.Kind,
		Frame:    ev.Frame,
	}
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("failed to write capture record: %w", err)
		return
	}
	r.count++
}

// Count returns the number of records written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the underlying file for recorders made by Create.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closer == nil {
		return r.err
	}
	err := r.closer.Close()
	r.closer = nil
	return errors.Join(r.err, err)
}

// Reader reads records written by a Recorder.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	if rec.Kind < amf.TraceSent || rec.Kind > amf.TraceTimedOut {
		return nil, fmt.Errorf("invalid capture record kind %d", rec.Kind)
	}
	return &rec, nil
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]*Record, error) {
	var recs []*Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
