package stream

import (
	"context"
	"io"
	"net/http"

	"github.com/pysugar/aoai-nexus/internal/stats"
	"github.com/pysugar/aoai-nexus/internal/upstream"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const passthroughChunk = 32 * 1024

// Passthrough relays the backend stream byte for byte, with the backend's status and
// headers, and scans completed lines only until the first usage object is recorded.
type Passthrough struct {
	session
	lines LineSplitter
}

func NewPassthrough(out *Writer, sink stats.Sink, model string, logger *zap.Logger) *Passthrough {
	return &Passthrough{session: newSession(out, sink, model, logger)}
}

func (p *Passthrough) Consume(_ context.Context, resp *http.Response, body io.Reader) error {
	p.out.Prepare(resp.StatusCode, upstream.ResponseHeaders(resp.Header))
	p.lines = LineSplitter{}

	buf := make([]byte, passthroughChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := p.out.Write(buf[:n]); werr != nil {
				return werr
			}
			if !p.usageRecorded {
				p.lines.Feed(buf[:n], p.scan)
			}
		}
		if err == io.EOF {
			if !p.usageRecorded && len(p.lines.Pending()) > 0 {
				p.scan(p.lines.Pending())
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *Passthrough) scan(line []byte) {
	if p.usageRecorded {
		return
	}
	payload, ok := DataPayload(line)
	if !ok || IsDone(payload) {
		return
	}
	if !gjson.ValidBytes(payload) {
		p.skip(payload, ErrMalformedFrame)
		return
	}
	p.recordUsage(payload)
}
