package can

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/pkg/dbc"
)

// DecodedMessage represents a decoded CAN message with all active signal values
type DecodedMessage struct {
	MessageName string
	MessageID   uint32
	Extended    bool
	RawData     []byte
	Timestamp   time.Time
	Signals     map[string]SignalValue
	// Order lists signal names in declaration order.
	Order []string
}

// SignalValue contains both raw and physical values of a signal
type SignalValue struct {
	Name          string
	RawValue      int64
	PhysicalValue float64
	Unit          string
	Description   string
	InRange       bool
}

// Decode returns the physical value of every active signal of the frame
// (id, extended). An unknown frame yields an empty map and no error. A
// payload too short for the message layout fails with ErrDecode.
func Decode(db *dbc.Database, id uint32, extended bool, payload []byte) (map[string]float64, error) {
	out := make(map[string]float64)
	msg, ok := db.Lookup(id, extended)
	if !ok {
		return out, nil
	}
	signals, err := activeSignals(msg, payload)
	if err != nil {
		return nil, err
	}
	for _, s := range signals {
		v, err := DecodeSignal(payload, s)
		if err != nil {
			return nil, errors.Wrapf(err, "message %s", msg.Name)
		}
		out[s.Name] = v
	}
	return out, nil
}

// activeSignals returns the signals present in payload: plain signals, the
// selector, and the multiplexed signals whose value matches the selector.
func activeSignals(msg *dbc.Message, payload []byte) ([]*dbc.Signal, error) {
	sel, ok := msg.Selector()
	if !ok {
		return msg.Signals, nil
	}
	muxVal, err := Unpack(payload, sel)
	if err != nil {
		return nil, errors.Wrapf(err, "message %s", msg.Name)
	}
	out := make([]*dbc.Signal, 0, len(msg.Signals))
	for _, s := range msg.Signals {
		if s.Mux.Kind == dbc.MuxMultiplexed && s.Mux.Value != muxVal {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Decoder decodes CAN frames using a signal database
type Decoder struct {
	db *dbc.Database
}

// NewDecoder creates a new CAN decoder
func NewDecoder(db *dbc.Database) *Decoder {
	return &Decoder{
		db: db,
	}
}

// DecodeFrame decodes a CAN frame into a DecodedMessage. Remote frames and
// frames missing from the database yield nil without error.
func (d *Decoder) DecodeFrame(frame *TimedFrame) (*DecodedMessage, error) {
	if frame.IsRemote {
		return nil, nil
	}
	message, ok := d.db.Lookup(frame.ID, frame.IsExtended)
	if !ok {
		return nil, nil
	}

	payload := frame.Payload()
	signals, err := activeSignals(message, payload)
	if err != nil {
		return nil, err
	}

	decoded := &DecodedMessage{
		MessageName: message.Name,
		MessageID:   frame.ID,
		Extended:    frame.IsExtended,
		RawData:     append([]byte(nil), payload...),
		Timestamp:   frame.Timestamp,
		Signals:     make(map[string]SignalValue, len(signals)),
		Order:       make([]string, 0, len(signals)),
	}

	for _, signal := range signals {
		raw, err := Unpack(payload, signal)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract signal %s", signal.Name)
		}
		physical := Physical(signal, raw)
		rawValue := RawValue(signal, raw)
		description, _ := signal.ValueDescription(rawValue)

		decoded.Signals[signal.Name] = SignalValue{
			Name:          signal.Name,
			RawValue:      rawValue,
			PhysicalValue: physical,
			Unit:          signal.Unit,
			Description:   description,
			InRange:       InRange(signal, physical),
		}
		decoded.Order = append(decoded.Order, signal.Name)
	}

	return decoded, nil
}

// InRange checks the physical value against the declared bounds of the
// signal. Signals without both bounds accept every value.
func InRange(signal *dbc.Signal, value float64) bool {
	if signal.Min == nil || signal.Max == nil {
		return true
	}

	// Allow for some floating point tolerance
	const epsilon = 1e-9
	return value >= (*signal.Min-epsilon) && value <= (*signal.Max+epsilon)
}

// FormatSignalValue formats a signal value with its unit
func FormatSignalValue(value float64, unit string) string {
	// Format based on value magnitude
	formatted := ""
	absValue := math.Abs(value)

	switch {
	case absValue == 0:
		formatted = "0"
	case absValue >= 1000 || absValue < 0.01:
		formatted = fmt.Sprintf("%.3e", value)
	case absValue >= 100:
		formatted = fmt.Sprintf("%.1f", value)
	case absValue >= 10:
		formatted = fmt.Sprintf("%.2f", value)
	default:
		formatted = fmt.Sprintf("%.3f", value)
	}

	if unit != "" {
		return fmt.Sprintf("%s %s", formatted, unit)
	}
	return formatted
}
