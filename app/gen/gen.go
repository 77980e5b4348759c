package gen

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

// DBCGenerator builds DBC text from signal rows.
type DBCGenerator struct {
	Version string
	Nodes   []string
	Options dbc.GenerateOptions
	// Strict verifies the text with the strict parser before it is written.
	Strict bool
	logger *slog.Logger
}

// NewDBCGenerator creates a new DBCGenerator
func NewDBCGenerator(opts dbc.GenerateOptions, logger *slog.Logger) *DBCGenerator {
	return &DBCGenerator{
		Options: opts,
		logger:  logger,
	}
}

// Build converts rows into a database, logging skipped rows and overlaps.
func (g *DBCGenerator) Build(rowsPath string, rows []table.Row, issues []dbc.Issue) *dbc.Database {
	db, rowIssues := table.ToDatabase(rows)
	source.LogIssues(g.logger, rowsPath, append(issues, rowIssues...))
	source.LogConflicts(g.logger, dbc.CheckOverlaps(db))

	b := db.Edit().SetVersion(g.Version)
	for _, n := range g.Nodes {
		b.AddNode(n)
	}
	return b.Build()
}

// Generate reads rowsPath and writes the DBC text to outputPath.
func (g *DBCGenerator) Generate(rowsPath string, format table.Format, outputPath string) (*dbc.Database, error) {
	g.logger.Info("Generating DBC file", "rows_file", rowsPath, "output_path", outputPath)

	rows, issues, err := table.ReadFile(rowsPath, format)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rows")
	}
	db := g.Build(rowsPath, rows, issues)

	if g.Strict {
		if err := dbc.VerifyStrict(outputPath, dbc.Generate(db, g.Options)); err != nil {
			return nil, err
		}
	}
	if err := dbc.WriteFile(outputPath, db, g.Options); err != nil {
		return nil, errors.Wrap(err, "failed to write DBC file")
	}
	return db, nil
}

// GenerateDBCFilename generates the output DBC filename from the rows filename
func GenerateDBCFilename(rowsFilename string) string {
	// Get base name without extension
	baseName := filepath.Base(rowsFilename)
	baseName = strings.TrimSuffix(baseName, filepath.Ext(baseName))

	return baseName + ".dbc"
}

// ParseNodes splits a comma separated node list, dropping empty entries.
func ParseNodes(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
