package dbc

import (
	cdbc "go.einride.tech/can/pkg/dbc"

	"github.com/cockroachdb/errors"
)

// ErrNotStrict is returned by VerifyStrict when text is not accepted by
// the strict go.einride.tech/can parser or when that parser reads a
// different layout than ours.
var ErrNotStrict = errors.New("dbc text is not strictly compliant")

// VerifyStrict parses text with the go.einride.tech/can DBC parser and
// cross-checks every message and signal layout against Parser. It is the
// acceptance check for generated output.
func VerifyStrict(name string, text []byte) error {
	parser := cdbc.NewParser(name, text)
	if err := parser.Parse(); err != nil {
		return errors.Mark(errors.Wrap(err, "parse dbc (can-go)"), ErrNotStrict)
	}

	own := NewParser(name, text).Parse()
	seen := 0
	for _, def := range parser.Defs() {
		m, ok := def.(*cdbc.MessageDef)
		if !ok || m.MessageID == cdbc.IndependentSignalsMessageID {
			continue
		}
		seen++
		msg, ok := own.Lookup(m.MessageID.ToCAN(), m.MessageID.IsExtended())
		if !ok {
			return errors.Wrapf(ErrNotStrict, "message %s (0x%X) not read by our parser", m.Name, m.MessageID.ToCAN())
		}
		if len(msg.Signals) != len(m.Signals) {
			return errors.Wrapf(ErrNotStrict, "message %s: %d signals, can-go reads %d", msg.Name, len(msg.Signals), len(m.Signals))
		}
		for _, s := range m.Signals {
			sig, ok := msg.Signal(string(s.Name))
			if !ok {
				return errors.Wrapf(ErrNotStrict, "message %s: signal %s missing", msg.Name, s.Name)
			}
			if sig.Start != int(s.StartBit) || sig.Length != int(s.Size) ||
				(sig.ByteOrder == Motorola) != s.IsBigEndian || sig.Signed != s.IsSigned ||
				(sig.Mux.Kind == MuxSelector) != s.IsMultiplexerSwitch ||
				(sig.Mux.Kind == MuxMultiplexed) != s.IsMultiplexed {
				return errors.Wrapf(ErrNotStrict, "message %s: signal %s layout differs", msg.Name, s.Name)
			}
		}
	}
	if seen != own.Len() {
		return errors.Wrapf(ErrNotStrict, "%d messages, can-go reads %d", own.Len(), seen)
	}
	return nil
}
