package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

func loadXLSX(path string, opts LoadOptions) (*Dataset, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open xlsx")
	}

	sheet, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	if len(sheet.Rows) == 0 {
		return New(), nil
	}

	header := rowToStrings(sheet.Rows[0])
	d := New(header...)
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		vals := make([]Value, d.NumCols())
		for j := range vals {
			if j < len(cells) {
				vals[j] = StrOrNA(cells[j])
			} else {
				vals[j] = NA()
			}
		}
		if err := d.AppendRow(vals); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func saveXLSX(d *Dataset, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Data")
	if err != nil {
		return eris.Wrap(err, "dataset: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, c := range d.Columns() {
		header.AddCell().SetString(c)
	}
	for i := 0; i < d.NumRows(); i++ {
		row := sheet.AddRow()
		for j := 0; j < d.NumCols(); j++ {
			v := d.At(i, j)
			cell := row.AddCell()
			if v.Kind() == KindNumber {
				fv, _ := v.Float()
				cell.SetFloat(fv)
			} else {
				cell.SetString(v.String())
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "dataset: save xlsx")
	}
	return nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("dataset: xlsx sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("dataset: xlsx file has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
