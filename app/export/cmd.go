package export

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/table"
)

type exporter struct {
	dbcFile    string
	outputFile string
	format     string
}

func NewCommand() *cobra.Command {
	s := &exporter{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the signals of a DBC file as a CSV or XLSX table.",
		Example: `  # One row per signal, format taken from the extension
  candbc export --dbc-file vehicle.dbc --output vehicle.xlsx`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file")
	cmd.Flags().StringVar(&s.outputFile, "output", s.outputFile, "Output table (default: <input>.<format>)")
	cmd.Flags().StringVar(&s.format, "format", s.format, "Table format: csv or xlsx (default: from the extension, then config)")

	cmd.MarkFlagRequired("dbc-file")

	return cmd
}

// resolve picks the table format and output path. An explicit --format
// wins, then the output extension, then the configured format.
func (s *exporter) resolve(input cli.Input) (table.Format, string, error) {
	var (
		format table.Format
		err    error
	)
	switch {
	case s.format != "":
		format, err = table.ParseFormat(s.format)
	case s.outputFile != "" && source.IsTable(s.outputFile):
		format, err = table.FormatOf(s.outputFile)
	default:
		format, err = input.Config.TableFormat()
	}
	if err != nil {
		return "", "", err
	}
	output := s.outputFile
	if output == "" {
		suffix := ""
		if source.IsTable(s.dbcFile) {
			suffix = "_rows"
		}
		output = source.DerivedPath(s.dbcFile, "", suffix, "."+string(format))
	}
	if filepath.Clean(output) == filepath.Clean(s.dbcFile) {
		return "", "", errors.Newf("output %s would overwrite the input", output)
	}
	return format, output, nil
}

func (s *exporter) run(ctx context.Context, input cli.Input) error {
	format, output, err := s.resolve(input)
	if err != nil {
		return err
	}

	input.Logger.Info("Exporting signal table",
		"dbc_file", s.dbcFile,
		"output_file", output,
		"format", string(format),
	)

	db, err := source.Load(s.dbcFile, input.Logger)
	if err != nil {
		return err
	}
	rows := table.FromDatabase(db)
	if err := table.WriteFile(output, format, rows); err != nil {
		return errors.Wrap(err, "failed to write table")
	}

	input.Logger.Info("Export completed", "output_file", output, "rows", len(rows))
	return nil
}
