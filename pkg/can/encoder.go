package can

import (
	"sort"

	"github.com/cockroachdb/errors"
	ecan "go.einride.tech/can"

	"github.com/BIwashi/candbc/pkg/dbc"
)

// Encoded is an assembled payload.
type Encoded struct {
	Data []byte
	// Clamped names the signals whose raw value was clamped.
	Clamped []string
}

// Encode assembles the payload of the message called message from physical
// values keyed by signal name. Signals without a value are left as zero bits.
func Encode(db *dbc.Database, message string, values map[string]float64) (Encoded, error) {
	msg, ok := db.MessageByName(message)
	if !ok {
		return Encoded{}, errors.Wrapf(ErrUnknownMessage, "%q", message)
	}
	return EncodeMessage(msg, values)
}

// EncodeMessage is Encode for a resolved message.
func EncodeMessage(msg *dbc.Message, values map[string]float64) (Encoded, error) {
	var unknown []string
	for name := range values {
		if _, ok := msg.Signal(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Encoded{}, errors.Wrapf(ErrUnknownSignal, "message %s: %v", msg.Name, unknown)
	}

	out := Encoded{Data: make([]byte, msg.Length)}
	for _, s := range msg.Signals {
		v, ok := values[s.Name]
		if !ok {
			continue
		}
		clamped, err := EncodeSignal(out.Data, s, v)
		if err != nil {
			return Encoded{}, errors.Wrapf(err, "message %s", msg.Name)
		}
		if clamped {
			out.Clamped = append(out.Clamped, s.Name)
		}
	}
	return out, nil
}

// Frame returns an einride frame carrying e for msg, ready for a sender.
func (e Encoded) Frame(msg *dbc.Message) ecan.Frame {
	f := ecan.Frame{
		ID:         msg.ID,
		Length:     uint8(len(e.Data)),
		IsExtended: msg.Extended,
	}
	copy(f.Data[:], e.Data)
	return f
}
