package dbc

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ByteOrder is the bit numbering used to lay a signal out in the payload.
type ByteOrder int

const (
	// Intel is little-endian, encoded as '1' after the '@' in DBC text.
	Intel ByteOrder = iota
	// Motorola is big-endian, encoded as '0' after the '@' in DBC text.
	Motorola
)

func (o ByteOrder) String() string {
	if o == Motorola {
		return "big"
	}
	return "little"
}

// ParseByteOrder accepts the row form ("little", "big") as well as the
// vendor names ("intel", "motorola").
func ParseByteOrder(s string) (ByteOrder, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); {
	case v == "" || strings.HasPrefix(v, "l") || v == "intel" || v == "1":
		return Intel, nil
	case strings.HasPrefix(v, "b") || v == "motorola" || v == "0":
		return Motorola, nil
	default:
		return Intel, errors.Wrapf(ErrInvalidRecord, "unknown byte order %q", s)
	}
}

// MuxKind tells how a signal takes part in multiplexing.
type MuxKind int

const (
	MuxNone MuxKind = iota
	MuxSelector
	MuxMultiplexed
)

// MuxRole is a signal's multiplex role. Value is only meaningful for
// MuxMultiplexed and holds the selector value that activates the signal.
type MuxRole struct {
	Kind  MuxKind
	Value uint64
}

// Multiplexed returns the role of a signal active when the selector equals v.
func Multiplexed(v uint64) MuxRole { return MuxRole{Kind: MuxMultiplexed, Value: v} }

// Selector is the role of a multiplexor signal.
var Selector = MuxRole{Kind: MuxSelector}

// String returns the DBC text form: "", "M" or "m<N>".
func (r MuxRole) String() string {
	switch r.Kind {
	case MuxSelector:
		return "M"
	case MuxMultiplexed:
		return "m" + strconv.FormatUint(r.Value, 10)
	default:
		return ""
	}
}

// ParseMuxRole parses the DBC text form of a multiplex role. A bare "m"
// is read as the selector.
func ParseMuxRole(s string) (MuxRole, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return MuxRole{}, nil
	case s == "M" || s == "m":
		return Selector, nil
	case len(s) > 1 && s[0] == 'm':
		v, err := strconv.ParseUint(s[1:], 10, 64)
		if err != nil {
			return MuxRole{}, errors.Wrapf(ErrInvalidRecord, "multiplex role %q", s)
		}
		return Multiplexed(v), nil
	default:
		return MuxRole{}, errors.Wrapf(ErrInvalidRecord, "multiplex role %q", s)
	}
}

// ValueDescription names one raw value of a signal (a VAL_ entry).
type ValueDescription struct {
	Value       int64
	Description string
}

// Signal is a bit field inside a message payload.
type Signal struct {
	Name      string
	Start     int
	Length    int
	ByteOrder ByteOrder
	Signed    bool
	Scale     float64
	Offset    float64
	// Min and Max are the declared physical bounds. Both must be set for
	// them to define the encodable range.
	Min               *float64
	Max               *float64
	Unit              string
	Comment           string
	Mux               MuxRole
	Receivers         []string
	ValueDescriptions []ValueDescription
}

// NewSignal returns an unsigned signal with scale 1 and offset 0.
func NewSignal(name string, start, length int, order ByteOrder) *Signal {
	return &Signal{
		Name:      name,
		Start:     start,
		Length:    length,
		ByteOrder: order,
		Scale:     1,
	}
}

// Bound returns a pointer to v, for filling Signal.Min and Signal.Max.
func Bound(v float64) *float64 { return &v }

// Validate checks the field invariants of s.
func (s *Signal) Validate() error {
	switch {
	case s.Name == "":
		return errors.Wrap(ErrInvalidRecord, "signal without name")
	case s.Length < 1 || s.Length > 64:
		return errors.Wrapf(ErrInvalidRecord, "signal %s: bit length %d outside 1..64", s.Name, s.Length)
	case s.Start < 0:
		return errors.Wrapf(ErrInvalidRecord, "signal %s: negative start bit %d", s.Name, s.Start)
	case !bitsInPayload(s.Bits()):
		return errors.Wrapf(ErrInvalidRecord, "signal %s: layout %d|%d@%s leaves the 8-byte payload",
			s.Name, s.Start, s.Length, s.ByteOrder)
	case s.Scale == 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0):
		return errors.Wrapf(ErrInvalidRecord, "signal %s: scale %v", s.Name, s.Scale)
	case math.IsNaN(s.Offset) || math.IsInf(s.Offset, 0):
		return errors.Wrapf(ErrInvalidRecord, "signal %s: offset %v", s.Name, s.Offset)
	case s.Min != nil && s.Max != nil && *s.Min > *s.Max:
		return errors.Wrapf(ErrInvalidRecord, "signal %s: min %v above max %v", s.Name, *s.Min, *s.Max)
	}
	return nil
}

// RawRange returns the smallest and largest raw integers the signal can hold.
func (s *Signal) RawRange() (float64, float64) {
	if s.Signed {
		half := math.Ldexp(1, s.Length-1)
		return -half, half - 1
	}
	return 0, math.Ldexp(1, s.Length) - 1
}

// PhysicalRange returns the encodable physical range. Declared bounds are
// used verbatim when both are present; otherwise the range is derived from
// the raw range through scale and offset.
func (s *Signal) PhysicalRange() (float64, float64) {
	if s.Min != nil && s.Max != nil {
		return *s.Min, *s.Max
	}
	return s.derivedRange()
}

func (s *Signal) derivedRange() (float64, float64) {
	lo, hi := s.RawRange()
	lo, hi = lo*s.Scale+s.Offset, hi*s.Scale+s.Offset
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// ValueDescription returns the description attached to raw value v.
func (s *Signal) ValueDescription(v int64) (string, bool) {
	for _, vd := range s.ValueDescriptions {
		if vd.Value == v {
			return vd.Description, true
		}
	}
	return "", false
}

func (s *Signal) clone() *Signal {
	c := *s
	if s.Min != nil {
		c.Min = Bound(*s.Min)
	}
	if s.Max != nil {
		c.Max = Bound(*s.Max)
	}
	if s.Receivers != nil {
		c.Receivers = append([]string(nil), s.Receivers...)
	}
	if s.ValueDescriptions != nil {
		c.ValueDescriptions = append([]ValueDescription(nil), s.ValueDescriptions...)
	}
	return &c
}

// Identifier limits.
const (
	MaxStandardID uint32 = 0x7FF
	MaxExtendedID uint32 = 0x1FFFFFFF
	// ExtendedFlag marks an extended frame in DBC ids and lookup keys.
	ExtendedFlag uint32 = 0x80000000
	// MaxLength is the largest classic CAN payload in bytes.
	MaxLength = 8
)

// Key folds the extended flag into the numeric id so standard and extended
// frames with the same numeric value never collide.
func Key(id uint32, extended bool) uint32 {
	if extended {
		return id | ExtendedFlag
	}
	return id
}

// SplitKey reverses Key.
func SplitKey(key uint32) (uint32, bool) {
	return key &^ ExtendedFlag, key&ExtendedFlag != 0
}

// Message is one CAN frame definition.
type Message struct {
	ID          uint32
	Extended    bool
	Name        string
	Length      uint8
	Transmitter string
	Comment     string
	Signals     []*Signal
}

// Key returns the database lookup key of m.
func (m *Message) Key() uint32 { return Key(m.ID, m.Extended) }

// Signal returns the signal called name.
func (m *Message) Signal(name string) (*Signal, bool) {
	for _, s := range m.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Selector returns the multiplexor signal of m, if any.
func (m *Message) Selector() (*Signal, bool) {
	for _, s := range m.Signals {
		if s.Mux.Kind == MuxSelector {
			return s, true
		}
	}
	return nil, false
}

// Validate checks the message fields and every signal. Bit overlaps are
// not checked here; see CheckMessage.
func (m *Message) Validate() error {
	if m.Name == "" {
		return errors.Wrapf(ErrInvalidRecord, "message 0x%X without name", m.ID)
	}
	if m.Extended {
		if m.ID > MaxExtendedID {
			return errors.Wrapf(ErrInvalidRecord, "message %s: extended id 0x%X above 0x%X", m.Name, m.ID, MaxExtendedID)
		}
	} else if m.ID > MaxStandardID {
		return errors.Wrapf(ErrInvalidRecord, "message %s: standard id 0x%X above 0x%X", m.Name, m.ID, MaxStandardID)
	}
	if m.Length > MaxLength {
		return errors.Wrapf(ErrInvalidRecord, "message %s: length %d above %d", m.Name, m.Length, MaxLength)
	}
	seen := make(map[string]struct{}, len(m.Signals))
	selectors := 0
	for _, s := range m.Signals {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "message %s", m.Name)
		}
		if _, ok := seen[s.Name]; ok {
			return errors.Wrapf(ErrDuplicate, "message %s: signal %s", m.Name, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Mux.Kind == MuxSelector {
			selectors++
		}
	}
	if selectors > 1 {
		return errors.Wrapf(ErrInvalidRecord, "message %s: %d multiplexor signals", m.Name, selectors)
	}
	return nil
}

func (m *Message) clone() *Message {
	c := *m
	c.Signals = make([]*Signal, len(m.Signals))
	for i, s := range m.Signals {
		c.Signals[i] = s.clone()
	}
	return &c
}

// Database is an immutable set of messages with an owned lookup table.
// It is safe for concurrent readers. Use Edit to derive a modified copy.
type Database struct {
	version  string
	nodes    []string
	messages []*Message
	byKey    map[uint32]*Message
	byName   map[string]*Message
}

// Version returns the VERSION string of the database.
func (d *Database) Version() string { return d.version }

// Nodes returns the declared network nodes.
func (d *Database) Nodes() []string { return append([]string(nil), d.nodes...) }

// Messages returns the messages in declaration order. The returned
// messages are shared with the database and must not be modified.
func (d *Database) Messages() []*Message { return append([]*Message(nil), d.messages...) }

// Len returns the number of messages.
func (d *Database) Len() int { return len(d.messages) }

// Message returns the message stored under a lookup key.
func (d *Database) Message(key uint32) (*Message, bool) {
	m, ok := d.byKey[key]
	return m, ok
}

// Lookup resolves a numeric arbitration id and extended flag to a message.
func (d *Database) Lookup(id uint32, extended bool) (*Message, bool) {
	return d.Message(Key(id, extended))
}

// MessageByName returns the message called name.
func (d *Database) MessageByName(name string) (*Message, bool) {
	m, ok := d.byName[name]
	return m, ok
}

// Edit returns a builder seeded with a deep copy of d. The database
// itself is never modified.
func (d *Database) Edit() *Builder {
	b := NewBuilder()
	b.version = d.version
	b.nodes = append(b.nodes, d.nodes...)
	for _, m := range d.messages {
		b.insert(m.clone())
	}
	return b
}
