// Package stream relays Server-Sent-Event bodies to the caller, either verbatim or
// re-framed between the Chat and Responses dialects.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

const doneFrame = "data: [DONE]\n\n"

// EventStreamHeaders are sent by the translating modes.
func EventStreamHeaders() http.Header {
	return http.Header{
		"Content-Type":      {"text/event-stream; charset=utf-8"},
		"Cache-Control":     {"no-cache"},
		"Connection":        {"keep-alive"},
		"X-Accel-Buffering": {"no"},
	}
}

// Writer is the caller side of one stream. Status and headers are held until the
// first write; from then on the stream is committed and no retry may happen.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher

	status int
	header http.Header

	committed atomic.Bool
	done      bool
}

func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f, status: http.StatusOK}
}

// Prepare sets the status and headers used at commit. Later calls replace earlier
// ones until the stream is committed, after which they are ignored.
func (w *Writer) Prepare(status int, header http.Header) {
	if w.committed.Load() {
		return
	}
	w.status = status
	w.header = header
}

func (w *Writer) commit() {
	if w.committed.Swap(true) {
		return
	}
	dst := w.w.Header()
	for k, values := range w.header {
		dst[k] = append([]string(nil), values...)
	}
	w.w.WriteHeader(w.status)
}

// Write commits the stream, writes p and flushes.
func (w *Writer) Write(p []byte) (int, error) {
	w.commit()
	n, err := w.w.Write(p)
	if err != nil {
		return n, err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return n, nil
}

// WriteEvent writes v as one "data: <json>" frame.
func (w *Writer) WriteEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	_, err = w.Write(frame)
	return err
}

// WriteDone writes the end-of-stream sentinel. Only the first call writes.
func (w *Writer) WriteDone() error {
	if w.done {
		return nil
	}
	w.done = true
	_, err := w.Write([]byte(doneFrame))
	return err
}

// DoneSent reports whether the sentinel has been written.
func (w *Writer) DoneSent() bool {
	return w.done
}

func (w *Writer) Committed() bool {
	return w.committed.Load()
}

// WriteError reports a terminal failure in-band as {"error": body} followed by the
// sentinel. Nothing is written once the sentinel has gone out.
func (w *Writer) WriteError(body any) error {
	if w.done {
		return nil
	}
	if err := w.WriteEvent(map[string]any{"error": body}); err != nil {
		return err
	}
	return w.WriteDone()
}

// Close commits the prepared status and headers if nothing has been written, so an
// empty upstream stream still reaches the caller with its status.
func (w *Writer) Close() {
	if w.committed.Load() {
		return
	}
	w.commit()
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
