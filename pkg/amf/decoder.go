// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"bytes"
	"fmt"
)

// Response is a decoded answer frame.
type Response struct {
	// Start and Address are the echoed preamble.
	Start   byte
	Address byte
	// Status is the raw error/status byte.
	Status byte
	// Counter holds the move counter in AsynchronousWithCounter mode, empty otherwise.
	Counter string
	// Data is the payload following the status byte.
	Data string
	// Raw is the frame as read from the wire.
	Raw []byte
}

// ErrorCode classifies the status byte.
func (r *Response) ErrorCode() (ErrorCode, error) {
	return LookupError(r.Status)
}

// HasCounter reports whether the answer carried a move counter.
func (r *Response) HasCounter() bool {
	return r.Counter != ""
}

// DecodeResponse splits a raw answer frame into its preamble, status byte and
// payload. The terminator is trimmed when present. It does not classify the
// status byte; see Response.ErrorCode.
func DecodeResponse(raw []byte, mode AnswerMode) (*Response, error) {
	body := bytes.TrimSuffix(raw, []byte(EndAnswer))

	if len(body) < minAnswerSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedResponse, len(body), minAnswerSize)
	}
	if body[0] != StartAnswer {
		return nil, fmt.Errorf("%w: start byte 0x%02X, want %q", ErrMalformedResponse, body[0], StartAnswer)
	}

	resp := &Response{
		Start:   body[0],
		Address: body[1],
		Status:  body[2],
		Raw:     raw,
	}

	if mode == AsynchronousWithCounter && body[2] == SystemMarker {
		if len(body) <= 3 {
			return nil, fmt.Errorf("%w: counter answer without counter byte", ErrMalformedResponse)
		}
		// Zero here is the NUL byte, not ASCII '0'; an ASCII '0' is a counter.
		if body[3] != 0 {
			resp.Counter = string(body[3:])
			resp.Data = "0"
			return resp, nil
		}
	}

	resp.Data = string(body[3:])
	return resp, nil
}

// HasTerminator reports whether raw ends with the answer terminator.
func HasTerminator(raw []byte) bool {
	return bytes.HasSuffix(raw, []byte(EndAnswer))
}
