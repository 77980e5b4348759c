package dbc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// SignalOrder selects the order of SG_ lines inside a message block.
type SignalOrder int

const (
	// OrderDeclared keeps the order in which signals were added.
	OrderDeclared SignalOrder = iota
	// OrderStartBit sorts by multiplex value, then start bit.
	OrderStartBit
	// OrderName sorts by signal name.
	OrderName
)

// ParseSignalOrder maps "declared", "start_bit" and "name" to a SignalOrder.
func ParseSignalOrder(s string) (SignalOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "declared":
		return OrderDeclared, nil
	case "start_bit", "start":
		return OrderStartBit, nil
	case "name":
		return OrderName, nil
	default:
		return OrderDeclared, errors.Newf("unknown signal order %q", s)
	}
}

// GenerateOptions controls text emission.
type GenerateOptions struct {
	SignalOrder SignalOrder
	// DefaultNode replaces an empty transmitter or receiver list.
	// NoNode is used when empty.
	DefaultNode string
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Sanitize replaces every character outside [A-Za-z0-9_] with '_'.
func Sanitize(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

var newSymbols = []string{
	"NS_DESC_", "CM_", "BA_DEF_", "BA_", "VAL_", "CAT_DEF_", "CAT_", "FILTER",
	"BA_DEF_DEF_", "EV_DATA_", "ENVVAR_DATA_", "SGTYPE_", "SGTYPE_VAL_",
	"BA_DEF_SGTYPE_", "BA_SGTYPE_", "SIG_TYPE_REF_", "VAL_TABLE_", "SIG_GROUP_",
	"SIG_VALTYPE_", "SIGTYPE_VALTYPE_", "BO_TX_BU_", "BA_DEF_REL_", "BA_REL_",
	"BA_DEF_DEF_REL_", "BU_SG_REL_", "BU_EV_REL_", "BU_BO_REL_", "SG_MUL_VAL_",
}

// Generate renders db as canonical DBC text. The output depends only on
// the database content and opts.
func Generate(db *Database, opts GenerateOptions) []byte {
	defaultNode := opts.DefaultNode
	if defaultNode == "" {
		defaultNode = NoNode
	}
	node := func(n string) string {
		if n == "" {
			return defaultNode
		}
		return Sanitize(n)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VERSION \"%s\"\n\n\n", strings.ReplaceAll(db.version, `"`, `'`))
	buf.WriteString("NS_ :\n")
	for _, s := range newSymbols {
		fmt.Fprintf(&buf, "\t%s\n", s)
	}
	buf.WriteString("\nBS_:\n\n")
	buf.WriteString("BU_:")
	for _, n := range db.nodes {
		buf.WriteString(" " + Sanitize(n))
	}
	buf.WriteString("\n\n")

	for _, m := range db.messages {
		dbcID := m.ID
		if m.Extended {
			dbcID |= ExtendedFlag
		}
		fmt.Fprintf(&buf, "BO_ %d %s: %d %s\n", dbcID, Sanitize(m.Name), m.Length, node(m.Transmitter))

		signals := orderSignals(m.Signals, opts.SignalOrder)
		for _, s := range signals {
			buf.WriteString(" SG_ " + Sanitize(s.Name))
			if r := s.Mux.String(); r != "" {
				buf.WriteString(" " + r)
			}
			order := "1"
			if s.ByteOrder == Motorola {
				order = "0"
			}
			sign := "+"
			if s.Signed {
				sign = "-"
			}
			lo, hi := emittedBounds(s)
			fmt.Fprintf(&buf, " : %d|%d@%s%s (%s,%s) [%s|%s] \"%s\" %s\n",
				s.Start, s.Length, order, sign,
				formatFloat(s.Scale), formatFloat(s.Offset),
				lo, hi, strings.ReplaceAll(s.Unit, `"`, ""),
				receivers(s.Receivers, defaultNode))
		}
		buf.WriteString("\n")

		if m.Comment != "" {
			fmt.Fprintf(&buf, "CM_ BO_ %d \"%s\";\n", dbcID, escape(m.Comment))
		}
		for _, s := range signals {
			if s.Comment != "" {
				fmt.Fprintf(&buf, "CM_ SG_ %d %s \"%s\";\n", dbcID, Sanitize(s.Name), escape(s.Comment))
			}
		}
		if m.Comment != "" || hasSignalComment(m) {
			buf.WriteString("\n")
		}
	}

	for _, m := range db.messages {
		dbcID := m.ID
		if m.Extended {
			dbcID |= ExtendedFlag
		}
		for _, s := range orderSignals(m.Signals, opts.SignalOrder) {
			if len(s.ValueDescriptions) == 0 {
				continue
			}
			fmt.Fprintf(&buf, "VAL_ %d %s", dbcID, Sanitize(s.Name))
			for _, vd := range s.ValueDescriptions {
				fmt.Fprintf(&buf, " %d \"%s\"", vd.Value, escape(vd.Description))
			}
			buf.WriteString(" ;\n")
		}
	}
	return buf.Bytes()
}

// WriteFile renders db and writes it to path, creating parent directories.
func WriteFile(path string, db *Database, opts GenerateOptions) error {
	if strings.TrimSpace(path) == "" {
		return errors.Wrap(ErrInvalidPath, "empty output path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Mark(errors.Wrapf(err, "create %s", dir), ErrInvalidPath)
		}
	}
	if err := os.WriteFile(path, Generate(db, opts), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func orderSignals(in []*Signal, order SignalOrder) []*Signal {
	out := append([]*Signal(nil), in...)
	switch order {
	case OrderStartBit:
		sort.SliceStable(out, func(i, j int) bool {
			if ki, kj := muxSortKey(out[i].Mux), muxSortKey(out[j].Mux); ki != kj {
				return less(ki, kj)
			}
			return out[i].Start < out[j].Start
		})
	case OrderName:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out
}

// muxSortKey puts the selector and plain signals ahead of multiplexed ones.
func muxSortKey(r MuxRole) [2]uint64 {
	if r.Kind != MuxMultiplexed {
		return [2]uint64{0, 0}
	}
	return [2]uint64{1, r.Value}
}

func less(a, b [2]uint64) bool {
	return a[0] < b[0] || (a[0] == b[0] && a[1] < b[1])
}

// emittedBounds renders [min|max]. A missing range becomes [0|0]; a half
// range is completed from the derived range since the grammar carries
// both bounds or none.
func emittedBounds(s *Signal) (string, string) {
	switch {
	case s.Min == nil && s.Max == nil:
		return "0", "0"
	case s.Min != nil && s.Max != nil:
		return formatFloat(*s.Min), formatFloat(*s.Max)
	}
	lo, hi := s.derivedRange()
	if s.Min != nil {
		lo = *s.Min
	}
	if s.Max != nil {
		hi = *s.Max
	}
	return formatFloat(lo), formatFloat(hi)
}

func receivers(rs []string, defaultNode string) string {
	if len(rs) == 0 {
		return defaultNode
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = Sanitize(r)
	}
	return strings.Join(out, ",")
}

func hasSignalComment(m *Message) bool {
	for _, s := range m.Signals {
		if s.Comment != "" {
			return true
		}
	}
	return false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
