package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/pkg/dbc"
)

// Format is a row file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and "xlsx" in any case, with or without a
// leading dot.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", errors.Wrapf(dbc.ErrInvalidPath, "unknown table format %q", s)
}

// FormatOf infers the format of path from its extension.
func FormatOf(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ReadFile reads rows from path. An empty format is inferred from the
// extension.
func ReadFile(path string, format Format) ([]Row, []dbc.Issue, error) {
	if format == "" {
		var err error
		if format, err = FormatOf(path); err != nil {
			return nil, nil, err
		}
	}
	data, err := dbc.ReadInput(path)
	if err != nil {
		return nil, nil, err
	}
	if format == FormatXLSX {
		return ReadXLSX(bytes.NewReader(data))
	}
	return ReadCSV(bytes.NewReader(data))
}

// WriteFile writes rows to path, creating parent directories. An empty
// format is inferred from the extension.
func WriteFile(path string, format Format, rows []Row) error {
	if strings.TrimSpace(path) == "" {
		return errors.Wrap(dbc.ErrInvalidPath, "empty output path")
	}
	if format == "" {
		var err error
		if format, err = FormatOf(path); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	var err error
	if format == FormatXLSX {
		err = WriteXLSX(&buf, rows)
	} else {
		err = WriteCSV(&buf, rows)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Mark(errors.Wrapf(err, "create %s", dir), dbc.ErrInvalidPath)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
