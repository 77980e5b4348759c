package check

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/dbc"
)

// ErrConflicts is returned with --fail-on-conflict when signals overlap.
var ErrConflicts = errors.New("signal bit overlaps found")

type checker struct {
	dbcFile        string
	strict         bool
	failOnConflict bool
}

func NewCommand() *cobra.Command {
	s := &checker{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report overlapping signal bits in a DBC file.",
		Long: `Report overlapping signal bits in a DBC file.

Signals are checked per message and multiplex context; a multiplexor may
share bits with the signals it selects. One line is printed per conflict.`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file (or CSV/XLSX signal table)")
	cmd.Flags().BoolVar(&s.strict, "strict", s.strict, "Also require the file to pass the strict DBC parser")
	cmd.Flags().BoolVar(&s.failOnConflict, "fail-on-conflict", s.failOnConflict, "Exit with an error when conflicts are found")

	cmd.MarkFlagRequired("dbc-file")

	return cmd
}

func (s *checker) run(ctx context.Context, input cli.Input) error {
	db, err := source.Load(s.dbcFile, input.Logger)
	if err != nil {
		return err
	}

	if s.strict && !source.IsTable(s.dbcFile) {
		text, err := dbc.ReadInput(s.dbcFile)
		if err != nil {
			return err
		}
		if err := dbc.VerifyStrict(s.dbcFile, text); err != nil {
			return err
		}
	}

	conflicts := dbc.CheckOverlaps(db)
	for _, c := range conflicts {
		fmt.Fprintln(input.Stdout, c.String())
	}
	input.Logger.Info("Overlap check completed",
		"dbc_file", s.dbcFile,
		"messages", db.Len(),
		"conflicts", len(conflicts),
	)

	if len(conflicts) > 0 && s.failOnConflict {
		return errors.Wrapf(ErrConflicts, "%d conflicts", len(conflicts))
	}
	return nil
}
