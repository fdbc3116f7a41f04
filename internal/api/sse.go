package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reelscope/internal/submission"
)

// EventStreamType is the media type of progress streams.
const EventStreamType = "text/event-stream"

// WriteEvent frames evt as a server-sent event. The SSE id is the event's
// sequence number so clients can resume with Last-Event-ID.
func WriteEvent(w io.Writer, evt submission.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Stage, data)
	return err
}

// WriteComment writes an SSE comment line, used as a keepalive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// EventReader decodes progress events from a server-sent event stream.
type EventReader struct {
	scanner *bufio.Scanner
	lastID  uint64
}

// NewEventReader reads events from r.
func NewEventReader(r io.Reader) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	return &EventReader{scanner: scanner}
}

// LastID returns the id of the last event read, for reconnecting.
func (r *EventReader) LastID() uint64 {
	return r.lastID
}

// Next returns the next event. It returns io.EOF when the stream ends.
func (r *EventReader) Next() (submission.Event, error) {
	var data bytes.Buffer
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			var evt submission.Event
			if err := json.Unmarshal(data.Bytes(), &evt); err != nil {
				return submission.Event{}, fmt.Errorf("decode event: %w", err)
			}
			if evt.Seq > r.lastID {
				r.lastID = evt.Seq
			}
			return evt, nil
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		case "id":
			if id, err := strconv.ParseUint(value, 10, 64); err == nil {
				r.lastID = id
			}
		}
	}
	if err := r.scanner.Err(); err != nil {
		return submission.Event{}, err
	}
	return submission.Event{}, io.EOF
}
