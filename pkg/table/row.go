// Package table converts a signal database to and from a flat row form,
// one row per signal, stored as CSV or XLSX.
package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/pkg/dbc"
)

// Header is the column order written by every encoder.
var Header = []string{
	"msg_id", "msg_name", "frame_type", "dlc", "msg_comment",
	"sig_name", "mode", "start", "length", "byte_order", "is_signed",
	"scale", "offset", "min", "max", "unit", "sig_comment",
}

var requiredColumns = []string{"msg_id", "sig_name", "start", "length"}

// ErrHeader is returned when a table has no header or lacks a required column.
var ErrHeader = errors.New("invalid table header")

const (
	frameStandard = "standard"
	frameExtended = "extended"
)

// Row is one signal with the fields of its message repeated. A row with an
// empty SigName describes a message without signals.
type Row struct {
	MsgID      uint32
	Extended   bool
	MsgName    string
	DLC        uint8
	MsgComment string
	SigName    string
	Mode       dbc.MuxRole
	Start      int
	Length     int
	ByteOrder  dbc.ByteOrder
	Signed     bool
	Scale      float64
	Offset     float64
	Min        *float64
	Max        *float64
	Unit       string
	SigComment string

	// Line is the record number in the source table, counting the header
	// as 1. It is 0 for rows built in memory.
	Line int
}

// FromDatabase flattens db in message then signal declaration order.
func FromDatabase(db *dbc.Database) []Row {
	var rows []Row
	for _, m := range db.Messages() {
		base := Row{
			MsgID:      m.ID,
			Extended:   m.Extended,
			MsgName:    m.Name,
			DLC:        m.Length,
			MsgComment: m.Comment,
		}
		if len(m.Signals) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, s := range m.Signals {
			r := base
			r.SigName = s.Name
			r.Mode = s.Mux
			r.Start = s.Start
			r.Length = s.Length
			r.ByteOrder = s.ByteOrder
			r.Signed = s.Signed
			r.Scale = s.Scale
			r.Offset = s.Offset
			r.Min = s.Min
			r.Max = s.Max
			r.Unit = s.Unit
			r.SigComment = s.Comment
			rows = append(rows, r)
		}
	}
	return rows
}

// ToDatabase groups rows by frame in first-seen order. The message fields
// come from the first row of each frame. Frames above 0x7FF are always
// extended. Rows that break a record invariant are skipped and reported.
func ToDatabase(rows []Row) (*dbc.Database, []dbc.Issue) {
	var (
		b      = dbc.NewBuilder()
		issues []dbc.Issue
		failed = make(map[uint32]bool)
	)
	for _, r := range rows {
		extended := r.Extended || r.MsgID > dbc.MaxStandardID
		key := dbc.Key(r.MsgID, extended)
		if failed[key] {
			issues = append(issues, rowIssue(r, errors.Newf("message 0x%X was rejected", r.MsgID)))
			continue
		}
		if _, ok := b.Message(key); !ok {
			name := r.MsgName
			if name == "" {
				name = fmt.Sprintf("MSG_%X", r.MsgID)
			}
			err := b.AddMessage(&dbc.Message{
				ID:       r.MsgID,
				Extended: extended,
				Name:     name,
				Length:   r.DLC,
				Comment:  r.MsgComment,
			})
			if err != nil {
				failed[key] = true
				issues = append(issues, rowIssue(r, err))
				continue
			}
		}
		if r.SigName == "" {
			continue
		}
		if err := b.AddSignal(key, r.signal()); err != nil {
			issues = append(issues, rowIssue(r, err))
		}
	}
	return b.Build(), issues
}

// CarryOver returns rebuilt with the fields the row schema does not hold
// copied from orig: version, nodes, transmitters, receivers and value
// descriptions. Messages and signals are matched by key and name.
func CarryOver(rebuilt, orig *dbc.Database) *dbc.Database {
	b := rebuilt.Edit().SetVersion(orig.Version())
	for _, n := range orig.Nodes() {
		b.AddNode(n)
	}
	for _, om := range orig.Messages() {
		m, ok := b.Message(om.Key())
		if !ok {
			continue
		}
		m.Transmitter = om.Transmitter
		for _, s := range m.Signals {
			src, ok := om.Signal(s.Name)
			if !ok {
				continue
			}
			s.Receivers = append([]string(nil), src.Receivers...)
			s.ValueDescriptions = append([]dbc.ValueDescription(nil), src.ValueDescriptions...)
		}
	}
	return b.Build()
}

func (r Row) signal() *dbc.Signal {
	return &dbc.Signal{
		Name:      r.SigName,
		Start:     r.Start,
		Length:    r.Length,
		ByteOrder: r.ByteOrder,
		Signed:    r.Signed,
		Scale:     r.Scale,
		Offset:    r.Offset,
		Min:       r.Min,
		Max:       r.Max,
		Unit:      r.Unit,
		Comment:   r.SigComment,
		Mux:       r.Mode,
	}
}

func rowIssue(r Row, err error) dbc.Issue {
	return dbc.Issue{Line: r.Line, Text: strings.Join(r.Record(), ","), Err: errors.Mark(err, dbc.ErrMalformedLine)}
}

// FormatID renders an id PCAN style: 0x%03X for standard frames and
// 0x%08X for extended ones.
func FormatID(id uint32, extended bool) string {
	if extended {
		return fmt.Sprintf("0x%08X", id)
	}
	return fmt.Sprintf("0x%03X", id)
}

// ParseID accepts 0x-prefixed hex, decimal, or bare hex.
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), errors.Wrapf(err, "id %q", s)
	}
	if v, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(v), nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), errors.Wrapf(err, "id %q", s)
}

// Record renders r in Header order.
func (r Row) Record() []string {
	frame := frameStandard
	if r.Extended {
		frame = frameExtended
	}
	signed := "False"
	if r.Signed {
		signed = "True"
	}
	rec := []string{
		FormatID(r.MsgID, r.Extended), r.MsgName, frame, strconv.Itoa(int(r.DLC)), r.MsgComment,
		r.SigName, "", "", "", "", "",
		"", "", bound(r.Min), bound(r.Max), r.Unit, r.SigComment,
	}
	if r.SigName != "" {
		rec[6] = r.Mode.String()
		rec[7] = strconv.Itoa(r.Start)
		rec[8] = strconv.Itoa(r.Length)
		rec[9] = r.ByteOrder.String()
		rec[10] = signed
		rec[11] = formatFloat(r.Scale)
		rec[12] = formatFloat(r.Offset)
	}
	return rec
}

func bound(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// columns maps header names to record positions.
type columns map[string]int

func newColumns(header []string) (columns, error) {
	if len(header) == 0 {
		return nil, errors.Wrap(ErrHeader, "empty header")
	}
	c := make(columns, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, bom)))
		if _, dup := c[h]; !dup {
			c[h] = i
		}
	}
	for _, k := range requiredColumns {
		if _, ok := c[k]; !ok {
			return nil, errors.Wrapf(ErrHeader, "missing column %q", k)
		}
	}
	return c, nil
}

func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ParseRecords decodes data records (header excluded) into rows. line is
// the record number of the first record. Blank records are ignored and bad
// records are skipped and reported.
func ParseRecords(header []string, records [][]string, line int) ([]Row, []dbc.Issue, error) {
	cols, err := newColumns(header)
	if err != nil {
		return nil, nil, err
	}
	var (
		rows   []Row
		issues []dbc.Issue
	)
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		r, err := cols.parse(rec)
		if err != nil {
			issues = append(issues, dbc.Issue{
				Line: line + i,
				Text: strings.Join(rec, ","),
				Err:  errors.Mark(err, dbc.ErrMalformedLine),
			})
			continue
		}
		r.Line = line + i
		rows = append(rows, r)
	}
	return rows, issues, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (c columns) parse(rec []string) (Row, error) {
	var (
		r   Row
		err error
	)
	if r.MsgID, err = ParseID(c.get(rec, "msg_id")); err != nil {
		return r, err
	}
	r.Extended = strings.EqualFold(c.get(rec, "frame_type"), frameExtended)
	r.MsgName = c.get(rec, "msg_name")
	if s := c.get(rec, "dlc"); s != "" {
		dlc, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return r, errors.Wrapf(err, "dlc %q", s)
		}
		r.DLC = uint8(dlc)
	} else {
		r.DLC = dbc.MaxLength
	}
	r.MsgComment = c.get(rec, "msg_comment")

	r.SigName = c.get(rec, "sig_name")
	if r.SigName == "" {
		return r, nil
	}
	if r.Mode, err = dbc.ParseMuxRole(c.get(rec, "mode")); err != nil {
		return r, err
	}
	if r.Start, err = strconv.Atoi(c.get(rec, "start")); err != nil {
		return r, errors.Wrap(err, "start")
	}
	if r.Length, err = strconv.Atoi(c.get(rec, "length")); err != nil {
		return r, errors.Wrap(err, "length")
	}
	if r.ByteOrder, err = dbc.ParseByteOrder(c.get(rec, "byte_order")); err != nil {
		return r, err
	}
	if r.Signed, err = parseBool(c.get(rec, "is_signed")); err != nil {
		return r, err
	}
	if r.Scale, err = parseFloat(c.get(rec, "scale"), 1); err != nil {
		return r, errors.Wrap(err, "scale")
	}
	if r.Offset, err = parseFloat(c.get(rec, "offset"), 0); err != nil {
		return r, errors.Wrap(err, "offset")
	}
	if r.Min, err = parseBound(c.get(rec, "min")); err != nil {
		return r, errors.Wrap(err, "min")
	}
	if r.Max, err = parseBound(c.get(rec, "max")); err != nil {
		return r, errors.Wrap(err, "max")
	}
	r.Unit = c.get(rec, "unit")
	r.SigComment = c.get(rec, "sig_comment")
	return r, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y", "signed", "-":
		return true, nil
	case "", "false", "0", "no", "n", "unsigned", "+":
		return false, nil
	}
	return false, errors.Newf("is_signed %q", s)
}

func parseFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseBound(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
