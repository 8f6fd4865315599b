package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pysugar/aoai-nexus/internal/stats"
	"go.uber.org/zap"
)

// ErrMalformedFrame marks a data frame whose payload is not JSON. Such frames are
// skipped: counted, logged at debug, and never fatal to the stream.
var ErrMalformedFrame = errors.New("malformed stream frame")

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// LineSplitter turns arbitrary chunks into complete lines, keeping the unterminated
// tail until the next chunk.
type LineSplitter struct {
	buf []byte
}

// Feed appends p and calls fn for every complete line, without its newline.
func (s *LineSplitter) Feed(p []byte, fn func(line []byte)) {
	s.buf = append(s.buf, p...)
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			break
		}
		fn(s.buf[:idx])
		s.buf = s.buf[idx+1:]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
}

// Pending returns the unterminated tail.
func (s *LineSplitter) Pending() []byte {
	return s.buf
}

// DataPayload returns the trimmed payload of a "data:" line. Other lines (comments,
// event names, blanks) and empty payloads report false.
func DataPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// IsDone reports whether payload is the end-of-stream sentinel.
func IsDone(payload []byte) bool {
	return bytes.Equal(payload, doneSentinel)
}

func decodeFrame(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return nil
}

// session is the per-call state every consumer shares.
type session struct {
	out    *Writer
	sink   stats.Sink
	model  string
	logger *zap.Logger

	usageRecorded bool
	skipped       int
}

func newSession(out *Writer, sink stats.Sink, model string, logger *zap.Logger) session {
	if sink == nil {
		sink = stats.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return session{out: out, sink: sink, model: model, logger: logger}
}

// recordUsage records the first usage object seen in the call; later ones are ignored.
func (s *session) recordUsage(payload []byte) {
	if s.usageRecorded {
		return
	}
	raw, ok := stats.UsageFromPayload(payload)
	if !ok {
		return
	}
	s.usageRecorded = stats.RecordUsageJSON(s.sink, s.model, raw)
}

func (s *session) skip(payload []byte, err error) {
	s.skipped++
	s.logger.Debug("skip malformed frame", zap.Int("bytes", len(payload)), zap.Error(err))
}

func (s *session) Committed() bool {
	return s.out.Committed()
}

// Skipped is the number of malformed frames dropped so far.
func (s *session) Skipped() int {
	return s.skipped
}

// UsageRecorded reports whether this call's usage reached the sink.
func (s *session) UsageRecorded() bool {
	return s.usageRecorded
}
