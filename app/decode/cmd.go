package decode

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	ecan "go.einride.tech/can"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/can"
	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

type decoder struct {
	dbcFile  string
	id       string
	extended bool
	data     string
}

func NewCommand() *cobra.Command {
	s := &decoder{}

	cmd := &cobra.Command{
		Use:     "decode",
		Short:   "Decode a single CAN frame.",
		Example: `  candbc decode --dbc-file vehicle.dbc --id 0x123 --data "10 27 02"`,
		RunE:    cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file (or CSV/XLSX signal table)")
	cmd.Flags().StringVar(&s.id, "id", s.id, "Arbitration id, hex with 0x or decimal")
	cmd.Flags().BoolVar(&s.extended, "extended", s.extended, "Extended (29-bit) frame; implied for ids above 0x7FF")
	cmd.Flags().StringVar(&s.data, "data", s.data, "Payload bytes in hex, separators allowed")

	cmd.MarkFlagRequired("dbc-file")
	cmd.MarkFlagRequired("id")

	return cmd
}

// ParsePayload reads hex bytes. Spaces, colons, dots and dashes between
// bytes are ignored.
func ParsePayload(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", ".", "", "-", "", "\t", "").Replace(s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrapf(err, "payload %q", s)
	}
	if len(data) > dbc.MaxLength {
		return nil, errors.Newf("payload %q: %d bytes, at most %d", s, len(data), dbc.MaxLength)
	}
	return data, nil
}

func (s *decoder) run(ctx context.Context, input cli.Input) error {
	id, err := table.ParseID(s.id)
	if err != nil {
		return err
	}
	extended := s.extended || id > dbc.MaxStandardID
	data, err := ParsePayload(s.data)
	if err != nil {
		return err
	}

	db, err := source.Load(s.dbcFile, input.Logger)
	if err != nil {
		return err
	}

	frame := &can.TimedFrame{Frame: ecan.Frame{ID: id, Length: uint8(len(data)), IsExtended: extended}}
	copy(frame.Data[:], data)

	decoded, err := can.NewDecoder(db).DecodeFrame(frame)
	if err != nil {
		return err
	}
	if decoded == nil {
		input.Logger.Warn("unknown frame", "can_id", table.FormatID(id, extended))
		return nil
	}

	fmt.Fprintf(input.Stdout, "%s %s\n", table.FormatID(id, extended), decoded.MessageName)
	for _, name := range decoded.Order {
		sv := decoded.Signals[name]
		line := fmt.Sprintf("  %s = %s (raw %d)", name, can.FormatSignalValue(sv.PhysicalValue, sv.Unit), sv.RawValue)
		if sv.Description != "" {
			line += fmt.Sprintf(" %q", sv.Description)
		}
		if !sv.InRange {
			line += " out of range"
		}
		fmt.Fprintln(input.Stdout, line)
	}
	return nil
}
