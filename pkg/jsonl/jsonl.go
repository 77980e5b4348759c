// Package jsonl writes decoded CAN messages as JSON lines, one object per frame.
package jsonl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"

	"github.com/BIwashi/candbc/pkg/can"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is the JSON form of one decoded frame.
type Record struct {
	TimeStamp int64    `json:"ts"`
	Message   string   `json:"message"`
	ID        string   `json:"id"`
	Extended  bool     `json:"extended"`
	Raw       string   `json:"raw"`
	Signals   []Signal `json:"signals"`
}

// Signal is one decoded signal value inside a Record.
type Signal struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Raw         int64   `json:"raw"`
	Unit        string  `json:"unit,omitempty"`
	Description string  `json:"description,omitempty"`
	InRange     bool    `json:"in_range"`
}

// NewRecord converts msg. Signals follow the message declaration order.
func NewRecord(msg *can.DecodedMessage) Record {
	rec := Record{
		TimeStamp: msg.Timestamp.UnixNano(),
		Message:   msg.MessageName,
		ID:        fmt.Sprintf("0x%X", msg.MessageID),
		Extended:  msg.Extended,
		Raw:       hexBytes(msg.RawData),
		Signals:   make([]Signal, 0, len(msg.Signals)),
	}
	for _, name := range msg.Order {
		sv, ok := msg.Signals[name]
		if !ok {
			continue
		}
		rec.Signals = append(rec.Signals, Signal{
			Name:        sv.Name,
			Value:       sv.PhysicalValue,
			Raw:         sv.RawValue,
			Unit:        sv.Unit,
			Description: sv.Description,
			InRange:     sv.InRange,
		})
	}
	return rec
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// Writer emits one Record per line.
type Writer struct {
	buf *bufio.Writer
	enc *jsoniter.Encoder
}

// NewWriter returns a Writer on out. Call Close to flush.
func NewWriter(out io.Writer) *Writer {
	buf := bufio.NewWriter(out)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// WriteMessage appends msg as a JSON line.
func (w *Writer) WriteMessage(msg *can.DecodedMessage) error {
	if msg == nil {
		return errors.New("nil DecodedMessage")
	}
	if err := w.enc.Encode(NewRecord(msg)); err != nil {
		return errors.Wrapf(err, "encode %s", msg.MessageName)
	}
	return nil
}

// Close flushes buffered lines. The underlying writer is not closed.
func (w *Writer) Close() error {
	return errors.Wrap(w.buf.Flush(), "flush json lines")
}

// ReadAll parses every line of r back into records. Blank lines are skipped.
func ReadAll(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.UnmarshalFromString(text, &rec); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read json lines")
	}
	return out, nil
}
