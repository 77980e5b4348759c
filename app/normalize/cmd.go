package normalize

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

// ErrConflicts is returned with --fail-on-conflict when signals overlap.
var ErrConflicts = errors.New("signal bit overlaps found")

type normalizer struct {
	dbcFile        string
	outputFile     string
	rowsFile       string
	strict         bool
	failOnConflict bool
}

func NewCommand() *cobra.Command {
	s := &normalizer{
		dbcFile:        "",
		outputFile:     "",
		rowsFile:       "",
		strict:         false,
		failOnConflict: false,
	}

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Clean a DBC file and re-emit it in canonical form.",
		Long: `Clean a DBC file and re-emit it in canonical form.

The input is parsed leniently, flattened into signal rows (optionally saved
as CSV or XLSX), rebuilt, checked for overlapping signal bits and written
back as canonical DBC text.`,
		Example: `  # Write vehicle_clean.dbc next to the input
  candbc normalize --dbc-file vehicle.dbc

  # Keep the intermediate rows and verify the result with the strict parser
  candbc normalize --dbc-file vehicle.dbc --rows-file vehicle.csv --strict`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "Input DBC file (or CSV/XLSX signal table)")
	cmd.Flags().StringVar(&s.outputFile, "output", s.outputFile, "Output DBC file (default: <input>_clean.dbc)")
	cmd.Flags().StringVar(&s.rowsFile, "rows-file", s.rowsFile, "Also save the intermediate rows as CSV or XLSX")
	cmd.Flags().BoolVar(&s.strict, "strict", s.strict, "Verify the output with the strict DBC parser")
	cmd.Flags().BoolVar(&s.failOnConflict, "fail-on-conflict", s.failOnConflict, "Fail instead of warning when signal bits overlap")

	cmd.MarkFlagRequired("dbc-file")

	return cmd
}

func (s *normalizer) run(ctx context.Context, input cli.Input) error {
	output := s.outputFile
	if output == "" {
		output = source.DerivedPath(s.dbcFile, "", "_clean", ".dbc")
	}
	opts, err := input.Config.GenerateOptions()
	if err != nil {
		return err
	}

	input.Logger.Info("Normalizing DBC",
		"dbc_file", s.dbcFile,
		"output_file", output,
		"rows_file", s.rowsFile,
	)

	db, err := source.Load(s.dbcFile, input.Logger)
	if err != nil {
		return err
	}

	rows := table.FromDatabase(db)
	if s.rowsFile != "" {
		if err := table.WriteFile(s.rowsFile, "", rows); err != nil {
			return errors.Wrap(err, "failed to write rows")
		}
		input.Logger.Info("Wrote signal rows", "rows_file", s.rowsFile, "rows", len(rows))
	}

	rebuilt, issues := table.ToDatabase(rows)
	source.LogIssues(input.Logger, s.dbcFile, issues)
	clean := table.CarryOver(rebuilt, db)

	conflicts := dbc.CheckOverlaps(clean)
	source.LogConflicts(input.Logger, conflicts)
	if len(conflicts) > 0 && s.failOnConflict {
		return errors.Wrapf(ErrConflicts, "%d conflicts", len(conflicts))
	}

	if s.strict {
		if err := dbc.VerifyStrict(output, dbc.Generate(clean, opts)); err != nil {
			return err
		}
	}
	if err := dbc.WriteFile(output, clean, opts); err != nil {
		return errors.Wrap(err, "failed to write DBC file")
	}

	input.Logger.Info("Normalization completed",
		"output_file", output,
		"messages", clean.Len(),
		"conflicts", len(conflicts),
	)
	return nil
}
