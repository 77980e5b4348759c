// Package source loads a signal database for the commands, either from DBC
// text or from a row file.
package source

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

// IsTable reports whether path names a row file (.csv or .xlsx).
func IsTable(path string) bool {
	_, err := table.FormatOf(path)
	return err == nil
}

// Load reads the database at path. Row files are converted through
// table.ToDatabase; everything else is parsed as DBC text. Skipped lines
// and rows are logged as warnings.
func Load(path string, logger *slog.Logger) (*dbc.Database, error) {
	var (
		db     *dbc.Database
		issues []dbc.Issue
	)
	if IsTable(path) {
		rows, rowIssues, err := table.ReadFile(path, "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to read rows")
		}
		db, issues = table.ToDatabase(rows)
		issues = append(rowIssues, issues...)
	} else {
		var err error
		db, issues, err = dbc.ParseFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse DBC file")
		}
	}
	LogIssues(logger, path, issues)
	logger.Info("Loaded signal database", "file", path, "messages", db.Len(), "issues", len(issues))
	return db, nil
}

// LogIssues writes one warning per issue.
func LogIssues(logger *slog.Logger, path string, issues []dbc.Issue) {
	for _, is := range issues {
		logger.Warn("skipped input line",
			"file", path,
			"line", is.Line,
			"reason", is.Err.Error(),
		)
	}
}

// LogConflicts writes one warning per conflict.
func LogConflicts(logger *slog.Logger, conflicts []dbc.Conflict) {
	for _, c := range conflicts {
		logger.Warn("signal_bit_overlap",
			"can_id", table.FormatID(dbc.SplitKey(c.MessageKey)),
			"message", c.Message,
			"context", c.Context,
			"signal", c.Signal,
			"bits", c.Bits,
		)
	}
}

// DerivedPath returns path with its extension replaced by suffix+ext,
// placed in dir when dir is not empty.
func DerivedPath(path, dir, suffix, ext string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + suffix + ext
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, base)
}
