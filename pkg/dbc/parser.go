package dbc

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// NoNode is the DBC placeholder for "no transmitter" or "no receiver".
const NoNode = "Vector__XXX"

// independentSignalsName is the pseudo message that carries signals not
// bound to any frame. It is not a real message and is skipped.
const independentSignalsName = "VECTOR__INDEPENDENT_SIG_MSG"

var (
	versionRegex = regexp.MustCompile(`^VERSION\s+"([^"]*)"`)
	nodesRegex   = regexp.MustCompile(`^BU_\s*:(.*)$`)
	messageRegex = regexp.MustCompile(`^BO_\s+(\d+)\s+([^\s:]+)\s*:\s*(\d+)\s*(\S*)`)
	signalRegex  = regexp.MustCompile(`^SG_\s+([^\s:]+)(?:\s+(M|m\d*))?\s*:\s*` +
		`(\d+)\|(\d+)@([01])([+-])\s*` +
		`\(\s*([^,()\s]+)\s*,\s*([^,()\s]+)\s*\)\s*` +
		`(?:\[\s*([^|\]\s]*)\s*\|\s*([^\]\s]*)\s*\])?\s*` +
		`(?:"([^"]*)")?\s*(.*)$`)

	// Pass 1 patterns run over the whole text so comments may span lines.
	commentRegex   = regexp.MustCompile(`(?m)^[ \t]*CM_\s+(BO_|SG_)\s+(\d+)\s+(?:([^\s"]+)\s+)?"((?:[^"\\]|\\.)*)"[ \t]*(?:;|$)`)
	valueRegex     = regexp.MustCompile(`(?m)^[ \t]*VAL_\s+(\d+)\s+([^\s"]+)((?:\s+-?\d+\s+"(?:[^"\\]|\\.)*")*)\s*;`)
	valuePairRegex = regexp.MustCompile(`(-?\d+)\s+"((?:[^"\\]|\\.)*)"`)
)

type signalRef struct {
	id   uint32
	name string
}

// Parser reads DBC text in two passes. The first pass harvests comments
// and value descriptions from anywhere in the text; the second walks the
// message and signal declarations top to bottom and attaches them.
type Parser struct {
	name string
	data []byte

	lines       []string
	consumed    map[int]struct{}
	msgComments map[uint32]string
	sigComments map[signalRef]string
	values      map[signalRef][]ValueDescription
	issues      []Issue
}

// NewParser returns a parser for data. name is only used in messages.
func NewParser(name string, data []byte) *Parser {
	return &Parser{name: name, data: data}
}

// ParseFile reads and parses the DBC file at path. Problems inside the
// file are reported as issues; only I/O problems are returned as errors.
func ParseFile(path string) (*Database, []Issue, error) {
	data, err := ReadInput(path)
	if err != nil {
		return nil, nil, err
	}
	p := NewParser(path, data)
	db := p.Parse()
	return db, p.Issues(), nil
}

// ReadInput reads a whole input file, classifying failures as
// ErrInvalidPath or ErrFileNotFound.
func ReadInput(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.Wrap(ErrInvalidPath, "empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", path), ErrFileNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "stat %s", path), ErrInvalidPath)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(ErrInvalidPath, "%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// Issues returns the lines skipped by the last Parse call.
func (p *Parser) Issues() []Issue { return p.issues }

// Parse builds a database from the parser input. It never fails; lines
// that cannot be used are recorded as issues.
func (p *Parser) Parse() *Database {
	text := strings.TrimPrefix(string(p.data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	p.lines = strings.Split(text, "\n")
	p.consumed = make(map[int]struct{})
	p.msgComments = make(map[uint32]string)
	p.sigComments = make(map[signalRef]string)
	p.values = make(map[signalRef][]ValueDescription)
	p.issues = nil

	p.collectAnnotations(text)
	return p.collectDefinitions()
}

func (p *Parser) collectAnnotations(text string) {
	starts := lineStarts(text)
	lineOf := func(off int) int {
		return sort.Search(len(starts), func(i int) bool { return starts[i] > off }) - 1
	}
	consume := func(from, to int) {
		for l := lineOf(from); l <= lineOf(to-1); l++ {
			p.consumed[l] = struct{}{}
		}
	}

	for _, m := range commentRegex.FindAllStringSubmatchIndex(text, -1) {
		line := lineOf(m[0])
		id, err := strconv.ParseUint(text[m[4]:m[5]], 10, 32)
		if err != nil {
			p.issues = append(p.issues, Malformed(line+1, p.lines[line], "comment id"))
			consume(m[0], m[1])
			continue
		}
		comment := unescape(text[m[8]:m[9]])
		switch text[m[2]:m[3]] {
		case "BO_":
			p.msgComments[uint32(id)] = comment
		case "SG_":
			if m[6] < 0 {
				p.issues = append(p.issues, Malformed(line+1, p.lines[line], "signal comment without signal name"))
				break
			}
			p.sigComments[signalRef{uint32(id), text[m[6]:m[7]]}] = comment
		}
		consume(m[0], m[1])
	}

	for _, m := range valueRegex.FindAllStringSubmatchIndex(text, -1) {
		line := lineOf(m[0])
		consume(m[0], m[1])
		id, err := strconv.ParseUint(text[m[2]:m[3]], 10, 32)
		if err != nil {
			p.issues = append(p.issues, Malformed(line+1, p.lines[line], "value table id"))
			continue
		}
		var descs []ValueDescription
		for _, pair := range valuePairRegex.FindAllStringSubmatch(text[m[6]:m[7]], -1) {
			v, err := strconv.ParseInt(pair[1], 10, 64)
			if err != nil {
				continue
			}
			descs = append(descs, ValueDescription{Value: v, Description: unescape(pair[2])})
		}
		p.values[signalRef{uint32(id), text[m[4]:m[5]]}] = descs
	}
}

type currentMessage struct {
	rawID uint32
	key   uint32
	skip  bool
}

func (p *Parser) collectDefinitions() *Database {
	b := NewBuilder()
	var cur *currentMessage

	for i, raw := range p.lines {
		if _, ok := p.consumed[i]; ok {
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		keyword := line
		if idx := strings.IndexAny(line, " \t:"); idx >= 0 {
			keyword = line[:idx]
		}

		switch keyword {
		case "VERSION":
			if m := versionRegex.FindStringSubmatch(line); m != nil {
				b.SetVersion(m[1])
			}
		case "BU_":
			if m := nodesRegex.FindStringSubmatch(line); m != nil {
				for _, n := range strings.Fields(m[1]) {
					b.AddNode(n)
				}
			}
		case "BO_":
			cur = p.parseMessage(b, i, line)
		case "SG_":
			switch {
			case cur == nil:
				p.issues = append(p.issues, Malformed(i+1, raw, "signal outside of a message"))
			case cur.skip:
			default:
				p.parseSignal(b, cur, i, raw, line)
			}
		case "CM_":
			if f := strings.Fields(line); len(f) > 1 && (f[1] == "BO_" || f[1] == "SG_") {
				p.issues = append(p.issues, Malformed(i+1, raw, "unterminated or malformed comment"))
			}
		case "VAL_":
			// A bare VAL_ is an entry of the NS_ symbol list.
			if len(strings.Fields(line)) > 1 {
				p.issues = append(p.issues, Malformed(i+1, raw, "malformed value table"))
			}
		}
	}
	return b.Build()
}

func (p *Parser) parseMessage(b *Builder, i int, line string) *currentMessage {
	m := messageRegex.FindStringSubmatch(line)
	if m == nil {
		p.issues = append(p.issues, Malformed(i+1, line, "message"))
		return nil
	}
	if m[2] == independentSignalsName {
		return &currentMessage{skip: true}
	}
	rawID, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		p.issues = append(p.issues, Malformed(i+1, line, "message id"))
		return nil
	}
	dlc, err := strconv.ParseUint(m[3], 10, 8)
	if err != nil || dlc > MaxLength {
		p.issues = append(p.issues, Malformed(i+1, line, "message length"))
		return &currentMessage{skip: true}
	}

	id := uint32(rawID)
	extended := id&ExtendedFlag != 0
	if id&^ExtendedFlag > MaxExtendedID {
		p.issues = append(p.issues, Malformed(i+1, line, "message id out of range"))
		return &currentMessage{skip: true}
	}
	id &= MaxExtendedID
	if id > MaxStandardID {
		extended = true
	}

	msg := &Message{
		ID:          id,
		Extended:    extended,
		Name:        m[2],
		Length:      uint8(dlc),
		Transmitter: nodeName(m[4]),
		Comment:     p.msgComments[uint32(rawID)],
	}
	if err := b.AddMessage(msg); err != nil {
		p.issues = append(p.issues, Issue{Line: i + 1, Text: line, Err: errors.Mark(err, ErrMalformedLine)})
		return &currentMessage{skip: true}
	}
	return &currentMessage{rawID: uint32(rawID), key: msg.Key()}
}

func (p *Parser) parseSignal(b *Builder, cur *currentMessage, i int, raw, line string) {
	m := signalRegex.FindStringSubmatch(line)
	if m == nil {
		p.issues = append(p.issues, Malformed(i+1, raw, "signal"))
		return
	}
	mux, err := ParseMuxRole(m[2])
	if err != nil {
		p.issues = append(p.issues, Malformed(i+1, raw, "multiplex role"))
		return
	}
	start, err1 := strconv.Atoi(m[3])
	length, err2 := strconv.Atoi(m[4])
	scale, err3 := strconv.ParseFloat(m[7], 64)
	offset, err4 := strconv.ParseFloat(m[8], 64)
	if err := errors.CombineErrors(errors.CombineErrors(err1, err2), errors.CombineErrors(err3, err4)); err != nil {
		p.issues = append(p.issues, Malformed(i+1, raw, "signal numbers"))
		return
	}
	lo, hi, err := parseBounds(m[9], m[10])
	if err != nil {
		p.issues = append(p.issues, Malformed(i+1, raw, "signal range"))
		return
	}

	order := Intel
	if m[5] == "0" {
		order = Motorola
	}
	ref := signalRef{cur.rawID, m[1]}
	sig := &Signal{
		Name:              m[1],
		Start:             start,
		Length:            length,
		ByteOrder:         order,
		Signed:            m[6] == "-",
		Scale:             scale,
		Offset:            offset,
		Min:               lo,
		Max:               hi,
		Unit:              m[11],
		Comment:           p.sigComments[ref],
		Mux:               mux,
		Receivers:         parseReceivers(m[12]),
		ValueDescriptions: p.values[ref],
	}
	if err := b.AddSignal(cur.key, sig); err != nil {
		p.issues = append(p.issues, Issue{Line: i + 1, Text: raw, Err: errors.Mark(err, ErrMalformedLine)})
	}
}

// parseBounds treats empty bounds and the conventional [0|0] as "no range".
func parseBounds(lo, hi string) (*float64, *float64, error) {
	parse := func(s string) (*float64, error) {
		if s == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	min, err := parse(lo)
	if err != nil {
		return nil, nil, err
	}
	max, err := parse(hi)
	if err != nil {
		return nil, nil, err
	}
	if min != nil && max != nil && *min == 0 && *max == 0 {
		return nil, nil, nil
	}
	return min, max, nil
}

func parseReceivers(s string) []string {
	var out []string
	for _, r := range strings.FieldsFunc(s, func(c rune) bool { return c == ',' || c == ' ' || c == '\t' }) {
		if n := nodeName(r); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func nodeName(s string) string {
	if s == NoNode {
		return ""
	}
	return s
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
