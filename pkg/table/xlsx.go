package table

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/BIwashi/candbc/pkg/dbc"
)

// SheetName is the worksheet written by WriteXLSX and preferred by ReadXLSX.
const SheetName = "signals"

// ReadXLSX reads rows from the "signals" sheet, or the first sheet when the
// workbook has none by that name.
func ReadXLSX(r io.Reader) ([]Row, []dbc.Issue, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	sheet := SheetName
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, nil, errors.Wrap(ErrHeader, "workbook has no sheets")
		}
		sheet = list[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read sheet %s", sheet)
	}
	if len(rows) == 0 {
		return nil, nil, errors.Wrapf(ErrHeader, "sheet %s is empty", sheet)
	}
	return ParseRecords(rows[0], rows[1:], 2)
}

// WriteXLSX writes rows to a new workbook with a single "signals" sheet.
// Every cell is stored as text so ids and numbers keep their exact form.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		rec := r.Record()
		if err := f.SetSheetRow(SheetName, cell, &rec); err != nil {
			return errors.Wrapf(err, "write row %d", i+2)
		}
	}
	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}
