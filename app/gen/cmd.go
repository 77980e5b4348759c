package gen

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

type generator struct {
	rowsFile    string
	format      string
	dbcFile     string
	outputDir   string
	version     string
	nodes       string
	signalOrder string
	defaultNode string
	strict      bool
}

func NewCommand() *cobra.Command {
	s := &generator{
		rowsFile:  "",
		format:    "",
		dbcFile:   "",
		outputDir: ".",
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a DBC file from a CSV or XLSX signal table.",
		RunE:  cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.rowsFile, "rows-file", s.rowsFile, "CSV or XLSX signal table")
	cmd.Flags().StringVar(&s.format, "format", s.format, "Table format: csv or xlsx (default: from the extension, then config)")
	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "Output DBC file path (optional, auto-generated if not specified)")
	cmd.Flags().StringVar(&s.outputDir, "output-dir", s.outputDir, "Output directory for the DBC file")
	cmd.Flags().StringVar(&s.version, "version-string", s.version, "VERSION string of the generated file")
	cmd.Flags().StringVar(&s.nodes, "nodes", s.nodes, "Comma separated BU_ node list")
	cmd.Flags().StringVar(&s.signalOrder, "signal-order", s.signalOrder, "Signal order: declared, start_bit or name (default: config)")
	cmd.Flags().StringVar(&s.defaultNode, "default-node", s.defaultNode, "Node written for empty transmitters and receivers (default: config)")
	cmd.Flags().BoolVar(&s.strict, "strict", s.strict, "Verify the output with the strict DBC parser")

	if err := cmd.MarkFlagRequired("rows-file"); err != nil {
		fmt.Printf("failed to mark flag as required, err: %v", err)

		return nil
	}

	return cmd
}

func (s *generator) tableFormat(input cli.Input) (table.Format, error) {
	if s.format != "" {
		return table.ParseFormat(s.format)
	}
	if f, err := table.FormatOf(s.rowsFile); err == nil {
		return f, nil
	}
	return input.Config.TableFormat()
}

func (s *generator) options(input cli.Input) (dbc.GenerateOptions, error) {
	cfg := *input.Config
	if s.signalOrder != "" {
		cfg.Generate.SignalOrder = s.signalOrder
	}
	if s.defaultNode != "" {
		cfg.Generate.DefaultNode = s.defaultNode
	}
	return cfg.GenerateOptions()
}

func (s *generator) run(ctx context.Context, input cli.Input) error {
	// If DBC file is not specified, it will be auto-generated
	output := s.dbcFile
	if output == "" {
		output = filepath.Join(s.outputDir, GenerateDBCFilename(s.rowsFile))
	}

	format, err := s.tableFormat(input)
	if err != nil {
		return err
	}
	opts, err := s.options(input)
	if err != nil {
		return err
	}

	input.Logger.Info("Generating DBC file from rows",
		"rows_file", s.rowsFile,
		"format", string(format),
		"output_path", output,
	)

	g := NewDBCGenerator(opts, input.Logger)
	g.Version = s.version
	g.Nodes = ParseNodes(s.nodes)
	g.Strict = s.strict
	db, err := g.Generate(s.rowsFile, format, output)
	if err != nil {
		return errors.Wrap(err, "failed to generate DBC file")
	}

	input.Logger.Info("Successfully generated DBC file", "output_path", output, "messages", db.Len())
	return nil
}
