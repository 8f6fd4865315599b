package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/aoai-nexus/internal/dialect"
	"github.com/pysugar/aoai-nexus/internal/shim"
	"github.com/pysugar/aoai-nexus/internal/stats"
	"go.uber.org/zap"
)

const maxFrame = 64 * 1024

// lineHandler consumes one complete upstream line and reports write errors.
type lineHandler func(line []byte) error

// readLines feeds every line of body to handle, including an unterminated last line.
func readLines(body io.Reader, handle lineHandler) error {
	br := bufio.NewReaderSize(body, maxFrame)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if herr := handle(bytes.TrimRight(line, "\r\n")); herr != nil {
				return herr
			}
		}
		if err != nil {
			return err
		}
	}
}

type toolCallEntry struct {
	index  int
	callID string
	name   string
}

// ChatFromResponses re-frames a Responses event stream as chat.completion.chunk frames.
type ChatFromResponses struct {
	session
	frame shim.ChunkFrame

	calls       map[string]toolCallEntry
	nextIndex   int
	sawToolCall bool
	finished    bool
}

func NewChatFromResponses(out *Writer, sink stats.Sink, model string, logger *zap.Logger, now time.Time) *ChatFromResponses {
	return &ChatFromResponses{
		session: newSession(out, sink, model, logger),
		frame: shim.ChunkFrame{
			ID:      "chatcmpl_" + uuid.NewString(),
			Created: now.Unix(),
			Model:   model,
		},
	}
}

func (t *ChatFromResponses) Consume(_ context.Context, _ *http.Response, body io.Reader) error {
	t.out.Prepare(http.StatusOK, EventStreamHeaders())
	// An earlier attempt may have registered tool calls without writing anything.
	t.calls = make(map[string]toolCallEntry)
	t.nextIndex = 0
	t.sawToolCall = false

	err := readLines(body, t.handle)
	switch {
	case errors.Is(err, io.EOF):
		if !t.finished {
			return t.out.WriteDone()
		}
		return nil
	case err != nil && t.out.DoneSent():
		// The caller already has a complete stream.
		return nil
	default:
		return err
	}
}

func (t *ChatFromResponses) handle(line []byte) error {
	payload, ok := DataPayload(line)
	if !ok {
		return nil
	}
	if IsDone(payload) {
		t.finished = true
		return t.out.WriteDone()
	}

	var evt dialect.ResponsesEvent
	if err := decodeFrame(payload, &evt); err != nil {
		t.skip(payload, err)
		return nil
	}
	t.recordUsage(payload)
	if t.finished {
		return nil
	}

	switch evt.Type {
	case dialect.EventOutputTextDelta:
		return t.out.WriteEvent(t.frame.TextDelta(evt.Delta))
	case dialect.EventOutputItemAdded, dialect.EventOutputItemDone:
		if evt.Item != nil && evt.Item.Type == dialect.ItemFunctionCall {
			t.register(evt.Item)
		}
	case dialect.EventFunctionArgumentsDelta:
		entry, ok := t.calls[evt.ItemID]
		if !ok {
			return nil
		}
		return t.out.WriteEvent(t.frame.ToolCallDelta(entry.index, entry.callID, entry.name, evt.Delta))
	case dialect.EventCompleted, dialect.EventOutputTextDone:
		t.finished = true
		if err := t.out.WriteEvent(t.frame.Finish(t.sawToolCall)); err != nil {
			return err
		}
		return t.out.WriteDone()
	}
	return nil
}

func (t *ChatFromResponses) register(item *dialect.OutputItem) {
	callID := item.CallID
	if callID == "" {
		callID = item.ID
	}
	if callID == "" {
		callID = fmt.Sprintf("call_%d", t.nextIndex)
	}
	key := item.ID
	if key == "" {
		key = callID
	}
	t.sawToolCall = true
	if _, seen := t.calls[key]; seen {
		return
	}
	t.calls[key] = toolCallEntry{index: t.nextIndex, callID: callID, name: item.Name}
	t.nextIndex++
}

// ResponsesFromChat re-frames a Chat chunk stream as Responses text-delta events.
// Tool calls and terminal events are not reconstructed; an upstream [DONE] is relayed.
type ResponsesFromChat struct {
	session
}

func NewResponsesFromChat(out *Writer, sink stats.Sink, model string, logger *zap.Logger) *ResponsesFromChat {
	return &ResponsesFromChat{session: newSession(out, sink, model, logger)}
}

func (t *ResponsesFromChat) Consume(_ context.Context, _ *http.Response, body io.Reader) error {
	t.out.Prepare(http.StatusOK, EventStreamHeaders())
	err := readLines(body, t.handle)
	if errors.Is(err, io.EOF) || (err != nil && t.out.DoneSent()) {
		return nil
	}
	return err
}

func (t *ResponsesFromChat) handle(line []byte) error {
	payload, ok := DataPayload(line)
	if !ok {
		return nil
	}
	if IsDone(payload) {
		return t.out.WriteDone()
	}

	var chunk dialect.ChatChunk
	if err := decodeFrame(payload, &chunk); err != nil {
		t.skip(payload, err)
		return nil
	}
	t.recordUsage(payload)
	if len(chunk.Choices) == 0 {
		return nil
	}
	if text := chunk.Choices[0].Delta.Content; text != nil && *text != "" {
		return t.out.WriteEvent(shim.ResponsesTextDelta(*text))
	}
	return nil
}
