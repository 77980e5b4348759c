package encode

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/can"
	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/table"
)

type encoder struct {
	dbcFile string
	message string
	values  []string
}

func NewCommand() *cobra.Command {
	s := &encoder{}

	cmd := &cobra.Command{
		Use:     "encode",
		Short:   "Encode physical signal values into a CAN payload.",
		Example: `  candbc encode --dbc-file vehicle.dbc --message Engine --set Speed=12.5 --set Gear=2`,
		RunE:    cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file (or CSV/XLSX signal table)")
	cmd.Flags().StringVar(&s.message, "message", s.message, "Message name")
	cmd.Flags().StringArrayVar(&s.values, "set", s.values, "Signal value as name=value, repeatable")

	cmd.MarkFlagRequired("dbc-file")
	cmd.MarkFlagRequired("message")

	return cmd
}

// ParseValues reads name=value assignments. A repeated name keeps the
// last value.
func ParseValues(assignments []string) (map[string]float64, error) {
	values := make(map[string]float64, len(assignments))
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Newf("value %q: want name=value", a)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %q", a)
		}
		values[name] = v
	}
	return values, nil
}

func (s *encoder) run(ctx context.Context, input cli.Input) error {
	values, err := ParseValues(s.values)
	if err != nil {
		return err
	}
	db, err := source.Load(s.dbcFile, input.Logger)
	if err != nil {
		return err
	}
	msg, ok := db.MessageByName(s.message)
	if !ok {
		return errors.Wrapf(can.ErrUnknownMessage, "%q", s.message)
	}

	encoded, err := can.EncodeMessage(msg, values)
	if err != nil {
		return err
	}
	for _, name := range encoded.Clamped {
		input.Logger.Warn("signal value clamped to raw range", "message", msg.Name, "signal", name)
	}

	fmt.Fprintf(input.Stdout, "%s#%X\n", table.FormatID(msg.ID, msg.Extended), encoded.Data)
	return nil
}
