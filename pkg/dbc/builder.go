package dbc

import (
	"github.com/cockroachdb/errors"
)

// Builder assembles a Database. Every operation validates its input and
// leaves the builder unchanged when it fails.
type Builder struct {
	version  string
	nodes    []string
	messages []*Message
	byKey    map[uint32]*Message
	byName   map[string]*Message
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		byKey:  make(map[uint32]*Message),
		byName: make(map[string]*Message),
	}
}

// SetVersion sets the VERSION string.
func (b *Builder) SetVersion(v string) *Builder {
	b.version = v
	return b
}

// AddNode declares a network node. Duplicates are ignored.
func (b *Builder) AddNode(name string) *Builder {
	for _, n := range b.nodes {
		if n == name {
			return b
		}
	}
	b.nodes = append(b.nodes, name)
	return b
}

// AddMessage validates m and adds a copy of it together with its signals.
func (b *Builder) AddMessage(m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if prev, ok := b.byKey[m.Key()]; ok {
		return errors.Wrapf(ErrDuplicate, "message %s: id 0x%X already used by %s", m.Name, m.ID, prev.Name)
	}
	if _, ok := b.byName[m.Name]; ok {
		return errors.Wrapf(ErrDuplicate, "message name %s", m.Name)
	}
	b.insert(m.clone())
	return nil
}

func (b *Builder) insert(m *Message) {
	b.messages = append(b.messages, m)
	b.byKey[m.Key()] = m
	b.byName[m.Name] = m
}

// AddSignal appends a copy of s to the message stored under key.
func (b *Builder) AddSignal(key uint32, s *Signal) error {
	m, ok := b.byKey[key]
	if !ok {
		return errors.Wrapf(ErrNotFound, "message key 0x%X", key)
	}
	next := *m
	next.Signals = append(append([]*Signal(nil), m.Signals...), s.clone())
	if err := next.Validate(); err != nil {
		return err
	}
	m.Signals = next.Signals
	return nil
}

// RenameSignal renames a signal of the message stored under key.
func (b *Builder) RenameSignal(key uint32, from, to string) error {
	m, ok := b.byKey[key]
	if !ok {
		return errors.Wrapf(ErrNotFound, "message key 0x%X", key)
	}
	idx := -1
	for i, s := range m.Signals {
		if s.Name == from {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Wrapf(ErrNotFound, "message %s: signal %s", m.Name, from)
	}
	renamed := m.Signals[idx].clone()
	renamed.Name = to
	next := *m
	next.Signals = append([]*Signal(nil), m.Signals...)
	next.Signals[idx] = renamed
	if err := next.Validate(); err != nil {
		return err
	}
	m.Signals = next.Signals
	return nil
}

// RemoveSignal drops a signal from the message stored under key.
func (b *Builder) RemoveSignal(key uint32, name string) error {
	m, ok := b.byKey[key]
	if !ok {
		return errors.Wrapf(ErrNotFound, "message key 0x%X", key)
	}
	for i, s := range m.Signals {
		if s.Name == name {
			m.Signals = append(append([]*Signal(nil), m.Signals[:i]...), m.Signals[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "message %s: signal %s", m.Name, name)
}

// Message returns the message under construction stored under key.
func (b *Builder) Message(key uint32) (*Message, bool) {
	m, ok := b.byKey[key]
	return m, ok
}

// Build returns an immutable database. The builder may keep being used;
// later changes do not affect the returned value.
func (b *Builder) Build() *Database {
	d := &Database{
		version:  b.version,
		nodes:    append([]string(nil), b.nodes...),
		messages: make([]*Message, 0, len(b.messages)),
		byKey:    make(map[uint32]*Message, len(b.messages)),
		byName:   make(map[string]*Message, len(b.messages)),
	}
	for _, m := range b.messages {
		c := m.clone()
		d.messages = append(d.messages, c)
		d.byKey[c.Key()] = c
		d.byName[c.Name] = c
	}
	return d
}
