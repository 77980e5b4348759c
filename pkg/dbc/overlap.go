package dbc

import (
	"fmt"
	"sort"
)

// BaseContext is the multiplex context of signals that are always present.
const BaseContext = "BASE"

// Conflict reports a signal whose bits are already claimed by an earlier
// signal of the same message and multiplex context.
type Conflict struct {
	MessageKey uint32
	Message    string
	Context    string
	Signal     string
	Bits       []int
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s in message %s (0x%X, ctx %s) overlaps bits %v",
		c.Signal, c.Message, c.MessageKey&^ExtendedFlag, c.Context, c.Bits)
}

// MuxContext returns the allocation context of a signal: BaseContext for
// plain signals, "m<N>" for multiplexed signals and "M" for the selector.
func MuxContext(r MuxRole) string {
	if r.Kind == MuxNone {
		return BaseContext
	}
	return r.String()
}

// CheckOverlaps runs CheckMessage over every message of db. The result is
// advisory; db is not modified.
func CheckOverlaps(db *Database) []Conflict {
	var out []Conflict
	for _, m := range db.messages {
		out = append(out, CheckMessage(m)...)
	}
	return out
}

// CheckMessage walks the signals of m in declaration order and reports
// every signal that reuses a bit already claimed in its multiplex context.
// Selector bits are recorded but never checked.
func CheckMessage(m *Message) []Conflict {
	var (
		out   []Conflict
		alloc = make(map[string]map[int]struct{})
	)
	for _, s := range m.Signals {
		ctx := MuxContext(s.Mux)
		claimed, ok := alloc[ctx]
		if !ok {
			claimed = make(map[int]struct{})
			alloc[ctx] = claimed
		}
		bits := s.Bits()
		if s.Mux.Kind != MuxSelector {
			var overlap []int
			for _, b := range bits {
				if _, taken := claimed[b]; taken {
					overlap = append(overlap, b)
				}
			}
			if len(overlap) > 0 {
				sort.Ints(overlap)
				out = append(out, Conflict{
					MessageKey: m.Key(),
					Message:    m.Name,
					Context:    ctx,
					Signal:     s.Name,
					Bits:       overlap,
				})
			}
		}
		for _, b := range bits {
			claimed[b] = struct{}{}
		}
	}
	return out
}
