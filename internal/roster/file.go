package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"staffbot/internal/apperr"
	"staffbot/internal/names"
)

// defaultColumns are header names accepted when no column is configured.
var defaultColumns = []string{"фио", "имя", "name"}

// FileProvider reads names from one column of an .xlsx or .csv file.
// The file is re-read on every call; wrap it in a Cached provider.
type FileProvider struct {
	Path   string
	Sheet  string // xlsx only; empty means the first sheet
	Column string // header name; empty means the first of defaultColumns found
}

func (p *FileProvider) CurrentNames(ctx context.Context) (names.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := p.readRows()
	if err != nil {
		return nil, apperr.External("roster file", err)
	}
	set, err := namesFromRows(rows, p.Column)
	if err != nil {
		return nil, apperr.External("roster file", err)
	}
	return set, nil
}

func (p *FileProvider) readRows() ([][]string, error) {
	switch strings.ToLower(filepath.Ext(p.Path)) {
	case ".csv":
		f, err := os.Open(p.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readCSV(f)
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(p.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sheet := p.Sheet
		if sheet == "" {
			sheet = f.GetSheetName(0)
		}
		return f.GetRows(sheet)
	default:
		return nil, fmt.Errorf("unsupported roster file %q", p.Path)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

// namesFromRows takes the first row as the header and collects the name column.
func namesFromRows(rows [][]string, column string) (names.Set, error) {
	if len(rows) == 0 {
		return nil, errors.New("roster file is empty")
	}
	idx := findColumn(rows[0], column)
	if idx < 0 {
		want := column
		if want == "" {
			want = strings.Join(defaultColumns, "/")
		}
		return nil, fmt.Errorf("roster column %q not found", want)
	}
	set := names.Set{}
	for _, row := range rows[1:] {
		if idx < len(row) {
			set.Add(row[idx])
		}
	}
	return set, nil
}

func findColumn(header []string, column string) int {
	if c := names.Normalize(column); c != "" {
		return findAny(header, []string{c})
	}
	return findAny(header, defaultColumns)
}
