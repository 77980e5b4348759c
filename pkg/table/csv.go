package table

import (
	"encoding/csv"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/candbc/pkg/dbc"
)

const bom = "\ufeff"

// ReadCSV reads a header line followed by one row per signal. A leading
// UTF-8 byte order mark is ignored.
func ReadCSV(r io.Reader) ([]Row, []dbc.Issue, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.Wrap(ErrHeader, "empty table")
		}
		return nil, nil, errors.Wrap(err, "read csv header")
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "read csv")
		}
		records = append(records, rec)
	}
	return ParseRecords(header, records, 2)
}

// WriteCSV writes the header and rows, prefixed with a UTF-8 byte order
// mark so spreadsheet tools pick the right encoding.
func WriteCSV(w io.Writer, rows []Row) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return errors.Wrap(err, "write csv")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
