package realtime

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Encode writes ev as an SSE frame. Multi-line data is split into several
// data fields.
func Encode(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	if ev.Name != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Name)
	}
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	data := ev.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// Heartbeat builds a heartbeat event stamped with now.
func Heartbeat(now time.Time) Event {
	return Event{Name: EventHeartbeat, Data: json.RawMessage(fmt.Sprintf(`{"timestamp":%d}`, now.Unix()))}
}

// Decoder reads SSE frames from a response body.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete event. Comment lines and unknown fields
// are skipped. io.EOF is returned when the stream ends between frames.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		started bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && started && line == "" {
				return Event{}, io.ErrUnexpectedEOF
			}
			if line == "" {
				return Event{}, err
			}
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !started {
				if err != nil {
					return Event{}, err
				}
				continue
			}
			ev.Data = json.RawMessage(strings.Join(data, "\n"))
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			started = true
		case "id":
			ev.ID = value
			started = true
		case "data":
			data = append(data, value)
			started = true
		}
		if err != nil {
			return Event{}, io.ErrUnexpectedEOF
		}
	}
}
